package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// ErrSessionNotFound はセッションが存在しない（失効済みを含む）場合に返されます。
var ErrSessionNotFound = errors.New("session not found")

// Session はログイン中のセッションを表します。
type Session struct {
	ID        string    `json:"id"`
	UserRef   string    `json:"userRef"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionStore はセッションの保存先です。
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// RedisSessionStore はセッションを Redis に有効期限付きで保存します。
type RedisSessionStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisSessionStore は RedisSessionStore を作成します。
func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, now: time.Now}
}

// Create はセッションを保存します。
func (s *RedisSessionStore) Create(ctx context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(session.ID), payload, ttl).Err()
}

// Get はセッションを取得します。
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete はセッションを削除します。存在しない場合は ErrSessionNotFound を返します。
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	n, err := s.rdb.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}
