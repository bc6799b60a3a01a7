package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	auditKeyPrefix   = "audit:"
	anonymousSubject = "anonymous"

	// 未認証の識別子ごとにリストを作らないよう、失敗したログインは一つのリストにまとめます。
	actionLoginFailed = "login_failed"
	failedLoginsKey   = auditKeyPrefix + "failed-logins"

	maxSubjectLength = 254

	// 主体ごとに保持するイベント数
	maxEventsPerSubject = 100
)

// Store は監査イベントを主体ごとの Redis リストに保存します。
// 失敗したログインは主体に関係なく共有のリストに入ります。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。ttl が 0 以下の場合は有効期限を設定しません。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Append はイベントを先頭に追加し、古いイベントを切り詰めます。
func (s *Store) Append(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := eventKey(event)
	tx := s.rdb.TxPipeline()
	tx.LPush(ctx, key, payload)
	tx.LTrim(ctx, key, 0, maxEventsPerSubject-1)
	if s.ttl > 0 {
		tx.Expire(ctx, key, s.ttl)
	}
	_, err = tx.Exec(ctx)
	return err
}

func eventKey(event *Event) string {
	if event.Action == actionLoginFailed {
		return failedLoginsKey
	}
	return auditKey(event.Subject)
}

func auditKey(subject string) string {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if len(subject) > maxSubjectLength {
		subject = subject[:maxSubjectLength]
	}
	if subject == "" {
		subject = anonymousSubject
	}
	return auditKeyPrefix + subject
}
