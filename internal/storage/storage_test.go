package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/buy-and-sell/internal/auth"
	"github.com/yourusername/buy-and-sell/internal/user"
)

var pngData = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

func TestSaveAvatarStoresImage(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocal(filepath.Join(dir, "upload"))
	require.NoError(t, err)

	name, err := local.SaveAvatar(bytes.NewReader(pngData))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".png"), name)

	stored, err := os.ReadFile(filepath.Join(dir, "upload", name))
	require.NoError(t, err)
	assert.Equal(t, pngData, stored)

	require.NoError(t, local.Remove(name))
	_, err = os.Stat(filepath.Join(dir, "upload", name))
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, local.Remove(name))
}

func TestSaveAvatarRejectsNonImage(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = local.SaveAvatar(strings.NewReader("plain text, not an image"))
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "INVALID_INPUT", apiErr.Code)

	_, err = local.SaveAvatar(bytes.NewReader(nil))
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "INVALID_INPUT", apiErr.Code)
}

func TestSaveAvatarRejectsLargeFile(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	big := append(append([]byte{}, pngData...), make([]byte, MaxAvatarBytes)...)
	_, err = local.SaveAvatar(bytes.NewReader(big))
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "LIMIT_EXCEEDED", apiErr.Code)
}

func TestRemoveRejectsPathTraversal(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	require.Error(t, local.Remove("../etc/passwd"))
}

type stubUpdater struct {
	user *user.User
	err  error
	ref  string
	name string
}

func (s *stubUpdater) UpdateAvatar(ctx context.Context, ref, avatar string) (*user.User, error) {
	s.ref = ref
	s.name = avatar
	if s.err != nil {
		return nil, s.err
	}
	u := *s.user
	u.Avatar = &avatar
	return &u, nil
}

func newAvatarRouter(t *testing.T, saver AvatarSaver, updater AvatarUpdater, current *user.User) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/avatar", func(c *gin.Context) {
		if current != nil {
			c.Set(auth.ContextUserKey, current)
		}
		c.Next()
	}, AvatarHandler(saver, updater, nil))
	return router
}

func avatarRequest(t *testing.T, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/avatar", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestAvatarHandlerSuccess(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocal(dir)
	require.NoError(t, err)
	updater := &stubUpdater{user: &user.User{ID: 7, Ref: "65f1a2b3c4d5e6f7a8000007", Name: "Ann"}}
	router := newAvatarRouter(t, local, updater, updater.user)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, avatarRequest(t, pngData))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, updater.name, payload["avatar"])
	assert.Equal(t, "65f1a2b3c4d5e6f7a8000007", updater.ref)
	_, err = os.Stat(filepath.Join(dir, updater.name))
	require.NoError(t, err)
}

func TestAvatarHandlerRemovesFileWhenUpdateFails(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocal(dir)
	require.NoError(t, err)
	updater := &stubUpdater{user: &user.User{Ref: "r"}, err: errors.New("mongo down")}
	router := newAvatarRouter(t, local, updater, updater.user)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, avatarRequest(t, pngData))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAvatarHandlerRejectsInvalidUpload(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	updater := &stubUpdater{user: &user.User{Ref: "r"}}
	router := newAvatarRouter(t, local, updater, updater.user)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, avatarRequest(t, []byte("hello")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/avatar", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, updater.ref)
}

func TestAvatarHandlerRequiresUser(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	router := newAvatarRouter(t, local, &stubUpdater{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, avatarRequest(t, pngData))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
