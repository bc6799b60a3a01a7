package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

var (
	loginWindow      = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxLoginAttempts = 5
)

// maxIdentifierLength を超える識別子は切り詰めてからキーにします。
const maxIdentifierLength = 254

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// stale は窓とロックの両方が切れているかどうかを返します。
func (s *attemptState) stale(now time.Time) bool {
	return now.Sub(s.firstAttempt) > loginWindow && !now.Before(s.lockedUntil)
}

// Limiter はクライアントとログイン識別子の組ごとに失敗回数を記録し、
// 一定回数を超えたらその組をロックします。
type Limiter struct {
	lock      sync.Mutex
	attempts  map[string]*attemptState
	lastSweep time.Time
	now       func() time.Time
}

// NewLimiter は Limiter を作成します。
func NewLimiter() *Limiter {
	return &Limiter{
		attempts: make(map[string]*attemptState),
		now:      time.Now,
	}
}

// Locked はロック中であれば残り時間を返します。
func (l *Limiter) Locked(key string) time.Duration {
	l.lock.Lock()
	defer l.lock.Unlock()

	key = limiterKey(key)
	state, ok := l.attempts[key]
	if !ok {
		return 0
	}
	now := l.now()
	if state.stale(now) {
		delete(l.attempts, key)
		return 0
	}
	if !now.Before(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

// RecordFailure は失敗を記録し、ロックまでの残り回数を返します。
func (l *Limiter) RecordFailure(key string) int {
	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.now()
	l.sweep(now)

	key = limiterKey(key)
	state, ok := l.attempts[key]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now, lockedUntil: lockedUntilOf(state)}
		l.attempts[key] = state
	}

	state.count++
	if state.count >= maxLoginAttempts {
		state.count = maxLoginAttempts
		state.lockedUntil = now.Add(lockDuration)
	}
	return maxLoginAttempts - state.count
}

// Reset は成功時に記録を消去します。
func (l *Limiter) Reset(key string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.attempts, limiterKey(key))
}

// Len は保持している記録の数を返します。
func (l *Limiter) Len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.attempts)
}

// sweep は loginWindow ごとに一度、期限切れの記録をまとめて捨てます。
// 呼び出し側でロックを保持している必要があります。
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < loginWindow {
		return
	}
	l.lastSweep = now
	for key, state := range l.attempts {
		if state.stale(now) {
			delete(l.attempts, key)
		}
	}
}

func lockedUntilOf(state *attemptState) time.Time {
	if state == nil {
		return time.Time{}
	}
	return state.lockedUntil
}

func limiterKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if len(key) > maxIdentifierLength {
		key = key[:maxIdentifierLength]
	}
	return key
}

type clientIPKey struct{}

// WithClientIP はログイン試行元のアドレスをコンテキストに載せます。
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// attemptKey は試行元アドレスと識別子を組み合わせたロックのキーを返します。
// アドレスが無い場合は識別子だけを使います。
func attemptKey(ctx context.Context, usernameOrEmail string) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	if ip == "" {
		return usernameOrEmail
	}
	return ip + "|" + usernameOrEmail
}
