package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestStoreAppendTrimsAndExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewStore(client, time.Hour)
	ctx := context.Background()

	for i := 0; i < maxEventsPerSubject+5; i++ {
		require.NoError(t, store.Append(ctx, &Event{Action: "login", Subject: "Ann", ClientIP: fmt.Sprint(i)}))
	}

	items, err := mr.List("audit:ann")
	require.NoError(t, err)
	require.Len(t, items, maxEventsPerSubject)

	var newest Event
	require.NoError(t, json.Unmarshal([]byte(items[0]), &newest))
	assert.Equal(t, fmt.Sprint(maxEventsPerSubject+4), newest.ClientIP)
	assert.False(t, newest.At.IsZero())

	assert.Equal(t, time.Hour, mr.TTL("audit:ann"))
	mr.FastForward(time.Hour + time.Second)
	assert.False(t, mr.Exists("audit:ann"))
}

func TestStoreAppendWithoutTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewStore(client, 0)

	require.NoError(t, store.Append(context.Background(), &Event{Action: "login", Subject: "ann"}))
	assert.True(t, mr.Exists("audit:ann"))
	assert.Zero(t, mr.TTL("audit:ann"))
}

func TestStoreGroupsFailedLogins(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewStore(client, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, &Event{Action: "login_failed", Subject: fmt.Sprintf("guess-%d", i)}))
	}

	items, err := mr.List(failedLoginsKey)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, []string{failedLoginsKey}, mr.Keys())
}

func TestStoreAppendRejectsNil(t *testing.T) {
	client, _ := setupTestRedis(t)
	require.Error(t, NewStore(client, time.Hour).Append(context.Background(), nil))
}

func TestStoreAppendRedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()
	require.Error(t, NewStore(client, time.Hour).Append(context.Background(), &Event{Action: "login", Subject: "ann"}))
}

func TestAuditKeyIsBounded(t *testing.T) {
	key := auditKey(strings.Repeat("A", 1000))
	assert.Len(t, key, len(auditKeyPrefix)+maxSubjectLength)
	assert.Equal(t, failedLoginsKey, eventKey(&Event{Action: "login_failed", Subject: "x"}))
	assert.Equal(t, "audit:x", eventKey(&Event{Action: "login", Subject: "x"}))
}
