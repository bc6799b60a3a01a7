package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/buy-and-sell/internal/config"
)

func testSettings(t *testing.T, uploadDir string) *config.Settings {
	t.Helper()
	cfg, err := config.Parse(
		[]string{"DB_USER=app", "DB_PASSWORD=secret"},
		map[string]string{"UPLOAD_DIR": uploadDir},
	)
	require.NoError(t, err)
	return cfg
}

func TestRunClosesBackendsWhenSetupFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	cfg := testSettings(t, filepath.Join(blocker, "upload"))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	connect := func(ctx context.Context, cfg *config.Settings, logger *slog.Logger) (*backends, error) {
		return &backends{redis: client}, nil
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	err := run(context.Background(), cfg, logger, connect)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload dir")
	assert.ErrorIs(t, client.Ping(context.Background()).Err(), redis.ErrClosed)
}

func TestRunReturnsConnectError(t *testing.T) {
	cfg := testSettings(t, t.TempDir())
	connect := func(ctx context.Context, cfg *config.Settings, logger *slog.Logger) (*backends, error) {
		return nil, errors.New("mongo unreachable")
	}

	err := run(context.Background(), cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), connect)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo unreachable")
}
