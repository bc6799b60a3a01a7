package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/buy-and-sell/internal/user"
)

// ContextUserKey は、ハンドラー間で認証済みユーザーを共有するためのキーです。
const ContextUserKey = "auth.user"

// RequireToken は Bearer トークンを検証するミドルウェアを返します。
// 検証に失敗した場合は /check-status と同じ 401 を返して処理を中断します。
func (h *Handler) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := h.authenticate(c)
		if err != nil {
			h.reject(c, c.FullPath(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msgInvalidToken})
			return
		}
		c.Set(ContextUserKey, u)
		c.Next()
	}
}

// CurrentUser は RequireToken が保存したユーザーを返します。
func CurrentUser(c *gin.Context) (*user.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*user.User)
	return u, ok && u != nil
}
