// Package jobs は監査イベントの非同期処理を提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	taskTypeAudit = "audit:event"
	queueAudit    = "audit"
)

// appender は監査イベントの保存先です。
type appender interface {
	Append(ctx context.Context, event *Event) error
}

// Manager は監査イベントのキュー投入とワーカーの管理を担います。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  appender
	logger *slog.Logger
	now    func() time.Time
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, store *Store, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueAudit: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client: asynq.NewClient(opt),
		server: server,
		mux:    mux,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	mux.HandleFunc(taskTypeAudit, manager.handleAuditTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error("asynq server stopped with error", "error", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown() error {
	m.server.Shutdown()
	return m.client.Close()
}

// Enqueue はイベントをキューに投入します。
func (m *Manager) Enqueue(ctx context.Context, event *Event) (string, error) {
	task, err := newAuditTask(event)
	if err != nil {
		return "", err
	}
	info, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Record は監査イベントを投入します。失敗はログに記録するのみで呼び出し元には返しません。
func (m *Manager) Record(ctx context.Context, action, subject, clientIP string) {
	event := &Event{
		Action:   action,
		Subject:  subject,
		ClientIP: clientIP,
		At:       m.now().UTC(),
	}
	if _, err := m.Enqueue(ctx, event); err != nil {
		m.logger.Warn("failed to enqueue audit event", "action", action, "error", err)
	}
}

func newAuditTask(event *Event) (*asynq.Task, error) {
	if event == nil {
		return nil, fmt.Errorf("event is nil")
	}
	if event.Action == "" {
		return nil, fmt.Errorf("event.Action is required")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskTypeAudit, body, asynq.Queue(queueAudit)), nil
}
