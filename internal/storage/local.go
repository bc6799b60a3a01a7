// Package storage はアップロードファイルの保存を提供します。
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// MaxAvatarBytes はアバター画像の最大サイズです。
const MaxAvatarBytes = 2 << 20

var allowedAvatarTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// Error はクライアントに返せる入力エラーです。
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Local は UPLOAD_DIR 配下にファイルを保存します。
type Local struct {
	dir string
}

// NewLocal は保存先ディレクトリを作成して Local を返します。
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

// SaveAvatar は画像を検証して保存し、保存したファイル名を返します。
func (l *Local) SaveAvatar(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxAvatarBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return "", newError("INVALID_INPUT", "avatar file is empty")
	}
	if len(data) > MaxAvatarBytes {
		return "", newError("LIMIT_EXCEEDED", "avatar must be at most 2 MiB")
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedAvatarTypes...) {
		return "", newError("INVALID_INPUT", "avatar must be a PNG, JPEG, GIF or WebP image")
	}

	name := uuid.NewString() + mtype.Extension()
	if err := writeFile(filepath.Join(l.dir, name), data); err != nil {
		return "", err
	}
	return name, nil
}

// Remove は保存済みファイルを削除します。存在しない場合は何もしません。
func (l *Local) Remove(name string) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("invalid file name %q", name)
	}
	if err := os.Remove(filepath.Join(l.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
