// Package auth は認証・認可機能を提供します。
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/buy-and-sell/internal/logging"
	"github.com/yourusername/buy-and-sell/internal/user"
)

// レスポンスメッセージ。原因に関わらずルートごとに固定です。
const (
	msgInvalidCredentials = "Invalid credentials"
	msgLoggedOut          = "Logged out successfully"
	msgUnableToLogout     = "Unable to logout"
	msgInvalidToken       = "Invalid token"
)

// 監査イベントの種別
const (
	AuditLogin       = "login"
	AuditLoginFailed = "login_failed"
)

// Service は認証処理本体を提供します。
type Service interface {
	Login(ctx context.Context, usernameOrEmail, password string) (string, error)
	Logout(ctx context.Context, token string) error
	ValidateToken(ctx context.Context, token string) (*user.User, error)
}

// Auditor はログイン試行の監査イベントを受け取ります。
type Auditor interface {
	Record(ctx context.Context, action, subject, clientIP string)
}

// HandlerOptions はハンドラーの補助的な依存関係です。いずれも省略可能です。
type HandlerOptions struct {
	Logger  *slog.Logger
	Timeout time.Duration
	Metrics *Metrics
	Auditor Auditor
}

// Handler は認証ルートを Service に委譲する HTTP アダプターです。
type Handler struct {
	svc     Service
	logger  *slog.Logger
	timeout time.Duration
	metrics *Metrics
	auditor Auditor
}

// NewHandler は Handler を作成します。
func NewHandler(svc Service, opts HandlerOptions) *Handler {
	return &Handler{
		svc:     svc,
		logger:  opts.Logger,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		auditor: opts.Auditor,
	}
}

// Register は認証ルートを登録します。
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)
	r.GET("/check-status", h.CheckStatus)
}

// maxLoginBodyBytes はログインリクエスト本文の上限です。
const maxLoginBodyBytes = 16 << 10

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" binding:"required,max=254"`
	Password        string `json:"password" binding:"required,max=1024"`
}

// Login は POST /login のハンドラーです。
func (h *Handler) Login(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxLoginBodyBytes)

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "/login", wrapInvalidInput(err), msgInvalidCredentials)
		return
	}

	ctx, cancel := h.delegateContext(c)
	defer cancel()
	ctx = WithClientIP(ctx, c.ClientIP())

	token, err := h.svc.Login(ctx, req.UsernameOrEmail, req.Password)
	if err != nil {
		h.audit(c, AuditLoginFailed, req.UsernameOrEmail)
		h.fail(c, "/login", err, msgInvalidCredentials)
		return
	}

	h.audit(c, AuditLogin, req.UsernameOrEmail)
	h.ok(c, "/login", gin.H{"token": token})
}

// Logout は POST /logout のハンドラーです。
func (h *Handler) Logout(c *gin.Context) {
	token, ok := BearerToken(c.GetHeader("Authorization"))
	if !ok {
		h.fail(c, "/logout", errMissingToken, msgUnableToLogout)
		return
	}

	ctx, cancel := h.delegateContext(c)
	defer cancel()

	if err := h.svc.Logout(ctx, token); err != nil {
		h.fail(c, "/logout", err, msgUnableToLogout)
		return
	}
	h.ok(c, "/logout", gin.H{"message": msgLoggedOut})
}

// CheckStatus は GET /check-status のハンドラーです。
func (h *Handler) CheckStatus(c *gin.Context) {
	u, err := h.authenticate(c)
	if err != nil {
		h.fail(c, "/check-status", err, msgInvalidToken)
		return
	}
	h.ok(c, "/check-status", u)
}

func (h *Handler) authenticate(c *gin.Context) (*user.User, error) {
	token, ok := BearerToken(c.GetHeader("Authorization"))
	if !ok {
		return nil, errMissingToken
	}

	ctx, cancel := h.delegateContext(c)
	defer cancel()

	u, err := h.svc.ValidateToken(ctx, token)
	if err == nil && u == nil {
		err = errNoUser
	}
	return u, err
}

// delegateContext は Service 呼び出し用にタイムアウト付きのコンテキストを返します。
func (h *Handler) delegateContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

func (h *Handler) ok(c *gin.Context, route string, body any) {
	h.metrics.observe(route, nil)
	c.JSON(http.StatusOK, body)
}

// fail はエラー詳細をログにのみ残し、固定メッセージで 401 を返します。
func (h *Handler) fail(c *gin.Context, route string, err error, message string) {
	h.reject(c, route, err)
	c.JSON(http.StatusUnauthorized, gin.H{"message": message})
}

func (h *Handler) reject(c *gin.Context, route string, err error) {
	h.metrics.observe(route, err)
	logging.Error(h.logger, "authentication request rejected", err,
		"route", route,
		"kind", string(Classify(err)),
		"client_ip", c.ClientIP(),
	)
}

func (h *Handler) audit(c *gin.Context, action, subject string) {
	if h.auditor == nil {
		return
	}
	h.auditor.Record(c.Request.Context(), action, subject, c.ClientIP())
}
