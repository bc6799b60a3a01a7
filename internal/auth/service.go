package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"

	"github.com/yourusername/buy-and-sell/internal/user"
)

// UserFinder はユーザーの検索を提供します。
type UserFinder interface {
	FindByNameOrEmail(ctx context.Context, usernameOrEmail string) (*user.User, error)
	FindByRef(ctx context.Context, ref string) (*user.User, error)
}

// TokenService は Service の実装です。
// ユーザーは UserFinder から、セッションは SessionStore から取得します。
type TokenService struct {
	users     UserFinder
	sessions  SessionStore
	hasher    PasswordHasher
	issuer    *TokenIssuer
	limiter   *Limiter
	dummyHash string
}

// NewTokenService は TokenService を作成します。
func NewTokenService(users UserFinder, sessions SessionStore, hasher PasswordHasher, issuer *TokenIssuer, limiter *Limiter) (*TokenService, error) {
	if users == nil || sessions == nil || hasher == nil || issuer == nil {
		return nil, errors.New("auth: users, sessions, hasher and issuer are required")
	}
	if limiter == nil {
		limiter = NewLimiter()
	}
	// 存在しないユーザーでも照合を行い、応答時間を揃えるためのハッシュ
	dummyHash, err := hasher.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &TokenService{
		users:     users,
		sessions:  sessions,
		hasher:    hasher,
		issuer:    issuer,
		limiter:   limiter,
		dummyHash: dummyHash,
	}, nil
}

// Login は資格情報を検証し、セッショントークンを発行します。
func (s *TokenService) Login(ctx context.Context, usernameOrEmail, password string) (string, error) {
	if strings.TrimSpace(usernameOrEmail) == "" || password == "" {
		return "", oops.Code(CodeInvalidInput).Errorf("username or email and password are required")
	}

	attempt := attemptKey(ctx, usernameOrEmail)
	if retryAfter := s.limiter.Locked(attempt); retryAfter > 0 {
		return "", oops.Code(CodeInvalidCredentials).
			With("retry_after", retryAfter.String()).
			Errorf("too many failed attempts")
	}

	found, err := s.users.FindByNameOrEmail(ctx, usernameOrEmail)
	targetHash := s.dummyHash
	switch {
	case err == nil && found != nil:
		targetHash = found.Password
	case err != nil && !errors.Is(err, user.ErrNotFound):
		return "", oops.Code(CodeUpstreamUnavailable).
			With("operation", "find user by name or email").
			Wrap(err)
	}

	valid := s.hasher.Verify(password, targetHash)
	if found == nil || !valid {
		remaining := s.limiter.RecordFailure(attempt)
		return "", oops.Code(CodeInvalidCredentials).
			With("remaining_attempts", remaining).
			Errorf("invalid username or password")
	}
	s.limiter.Reset(attempt)

	if found.Ref == "" {
		return "", oops.With("user_id", found.ID).Errorf("user has no persistence id")
	}

	token, claims, err := s.issuer.Issue(found.Ref)
	if err != nil {
		return "", oops.With("operation", "issue token").Wrap(err)
	}

	session := &Session{
		ID:        claims.ID,
		UserRef:   found.Ref,
		CreatedAt: claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", oops.Code(CodeUpstreamUnavailable).
			With("operation", "persist session").
			Wrap(err)
	}
	return token, nil
}

// Logout はトークンに対応するセッションを失効させます。
func (s *TokenService) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, claims.ID); err != nil {
		return sessionError(err, "delete session")
	}
	return nil
}

// ValidateToken はトークンを検証し、対応するユーザーを返します。
func (s *TokenService) ValidateToken(ctx context.Context, token string) (*user.User, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Get(ctx, claims.ID)
	if err != nil {
		return nil, sessionError(err, "get session")
	}
	if session.UserRef != claims.Subject {
		return nil, oops.Code(CodeInvalidToken).
			With("session_id", claims.ID).
			Errorf("session does not belong to token subject")
	}

	u, err := s.users.FindByRef(ctx, session.UserRef)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, oops.Code(CodeInvalidToken).
				With("user_ref", session.UserRef).
				Wrap(err)
		}
		return nil, oops.Code(CodeUpstreamUnavailable).
			With("operation", "find user by ref").
			Wrap(err)
	}
	return u, nil
}

func (s *TokenService) parse(token string) (*Claims, error) {
	if token == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("token cannot be empty")
	}
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return nil, oops.Code(CodeInvalidToken).Wrap(err)
	}
	return claims, nil
}

func sessionError(err error, operation string) error {
	if errors.Is(err, ErrSessionNotFound) {
		return oops.Code(CodeInvalidToken).Wrap(err)
	}
	return oops.Code(CodeUpstreamUnavailable).
		With("operation", operation).
		Wrap(err)
}
