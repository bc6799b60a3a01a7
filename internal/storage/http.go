package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/buy-and-sell/internal/auth"
	"github.com/yourusername/buy-and-sell/internal/user"
)

// AvatarSaver はアバター画像の保存先です。
type AvatarSaver interface {
	SaveAvatar(r io.Reader) (string, error)
	Remove(name string) error
}

// AvatarUpdater はユーザーのアバター参照を更新します。
type AvatarUpdater interface {
	UpdateAvatar(ctx context.Context, ref, avatar string) (*user.User, error)
}

// AvatarHandler は POST /avatar のハンドラーを返します。
// auth.Handler.RequireToken の後段に配置する必要があります。
func AvatarHandler(saver AvatarSaver, users AvatarUpdater, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		current, ok := auth.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			return
		}

		header, err := c.FormFile("avatar")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "send the image as multipart/form-data field \"avatar\"",
			})
			return
		}
		file, err := header.Open()
		if err != nil {
			respondWithError(c, logger, err)
			return
		}
		defer file.Close()

		name, err := saver.SaveAvatar(file)
		if err != nil {
			respondWithError(c, logger, err)
			return
		}

		updated, err := users.UpdateAvatar(c.Request.Context(), current.Ref, name)
		if err != nil {
			if removeErr := saver.Remove(name); removeErr != nil {
				logger.Warn("failed to remove orphaned avatar", "file", name, "error", removeErr)
			}
			respondWithError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func respondWithError(c *gin.Context, logger *slog.Logger, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		if apiErr.Code == "LIMIT_EXCEEDED" {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, user.ErrNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
	default:
		logger.Error("avatar upload failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "internal server error",
		})
	}
}
