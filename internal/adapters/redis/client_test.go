package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/pkg/errors"
)

func withLockToken(t *testing.T, token string) {
	t.Helper()
	prev := newLockToken
	newLockToken = func() string { return token }
	t.Cleanup(func() { newLockToken = prev })
}

func TestAcquireLock_StoresToken(t *testing.T) {
	withLockToken(t, "run-a")
	db, mock := redismock.NewClientMock()
	c := &Client{rdb: db}

	mock.ExpectSetNX("lock:batch", "run-a", time.Minute).SetVal(true)

	token, ok, err := c.AcquireLock(context.Background(), "batch", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "run-a", token)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock_Held(t *testing.T) {
	withLockToken(t, "run-b")
	db, mock := redismock.NewClientMock()
	c := &Client{rdb: db}

	mock.ExpectSetNX("lock:batch", "run-b", time.Minute).SetVal(false)

	token, ok, err := c.AcquireLock(context.Background(), "batch", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)
}

func TestReleaseLock_OwnToken(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := &Client{rdb: db}

	mock.ExpectEval(releaseLockScript, []string{"lock:batch"}, "run-a").SetVal(int64(1))

	require.NoError(t, c.ReleaseLock(context.Background(), "batch", "run-a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseLock_KeepsLockOfAnotherHolder(t *testing.T) {
	// The TTL expired mid-run and another instance took the lock
	db, mock := redismock.NewClientMock()
	c := &Client{rdb: db}

	mock.ExpectEval(releaseLockScript, []string{"lock:batch"}, "run-a").SetVal(int64(0))

	err := c.ReleaseLock(context.Background(), "batch", "run-a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockNotHeld))
	assert.NoError(t, mock.ExpectationsWereMet())
}
