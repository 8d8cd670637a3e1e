package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestKey_Normalizes(t *testing.T) {
	a := notify.Key("t1", "devis_sent", "Devis  DEV-2026-0001 envoyé", "Envoyé à Paul")
	b := notify.Key("t1", "devis_sent", " devis dev-2026-0001\tENVOYÉ ", "envoyé à   paul")
	assert.Equal(t, a, b)

	// NFKC folds the ligature and compatibility forms.
	assert.Equal(t, notify.Key("t1", "x", "ﬁn", ""), notify.Key("t1", "x", "fin", ""))

	assert.NotEqual(t, a, notify.Key("t2", "devis_sent", "Devis DEV-2026-0001 envoyé", "Envoyé à Paul"))
	assert.NotEqual(t, a, notify.Key("t1", "facture_sent", "Devis DEV-2026-0001 envoyé", "Envoyé à Paul"))
	assert.NotEqual(t, notify.Key("t", "ab", "c", ""), notify.Key("t", "a", "bc", ""), "fields are delimited")
}

func TestMemoryDeduplicator_OncePerWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	d := notify.NewMemoryDeduplicator(30*time.Second, 5*time.Minute, notify.WithClock(clock.Now), notify.WithoutSweeper())
	defer d.Close() //nolint:errcheck
	ctx := context.Background()

	ok, err := d.ShouldSend(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(29 * time.Second)
	ok, _ = d.ShouldSend(ctx, "k")
	assert.False(t, ok, "second call within the window")

	ok, _ = d.ShouldSend(ctx, "other")
	assert.True(t, ok, "keys are independent")

	clock.Advance(2 * time.Second)
	ok, _ = d.ShouldSend(ctx, "k")
	assert.True(t, ok, "window elapsed")
}

func TestMemoryDeduplicator_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	d := notify.NewMemoryDeduplicator(30*time.Second, 5*time.Minute, notify.WithClock(clock.Now), notify.WithoutSweeper())
	defer d.Close() //nolint:errcheck
	ctx := context.Background()

	_, _ = d.ShouldSend(ctx, "old")
	clock.Advance(4 * time.Minute)
	_, _ = d.ShouldSend(ctx, "recent")
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, d.Sweep())
	assert.Equal(t, 1, d.Len())
}

func TestMemoryDeduplicator_BackgroundSweep(t *testing.T) {
	d := notify.NewMemoryDeduplicator(10*time.Millisecond, 10*time.Millisecond)
	_, _ = d.ShouldSend(context.Background(), "k")

	assert.Eventually(t, func() bool { return d.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close(), "close is idempotent")
}

func TestMemoryDeduplicator_ConcurrentCallersSendOnce(t *testing.T) {
	d := notify.NewMemoryDeduplicator(time.Minute, time.Minute, notify.WithoutSweeper())
	defer d.Close() //nolint:errcheck

	var sent atomic.Int32
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := d.ShouldSend(context.Background(), "same"); ok {
				sent.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), sent.Load())
}

type memStore struct {
	mu    sync.Mutex
	items []*model.Notification
	err   error
}

func (s *memStore) Create(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.items = append(s.items, n)
	return nil
}

type brokenDedup struct{}

func (brokenDedup) ShouldSend(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}
func (brokenDedup) Forget(context.Context, string) error { return errors.New("redis: connection refused") }
func (brokenDedup) Close() error                          { return nil }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestService_SuppressesDuplicates(t *testing.T) {
	st := &memStore{}
	dedup := notify.NewMemoryDeduplicator(30*time.Second, 5*time.Minute, notify.WithoutSweeper())
	defer dedup.Close() //nolint:errcheck
	svc, err := notify.NewService(st, dedup, discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	n := func() *model.Notification {
		return &model.Notification{TenantID: "t1", Type: model.NotificationDevisSent, Title: "Devis envoyé", Message: "DEV-2026-0001"}
	}
	ok, err := svc.Notify(ctx, n())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Notify(ctx, n())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, st.items, 1)
}

func TestService_DedupFailureStillStores(t *testing.T) {
	st := &memStore{}
	svc, err := notify.NewService(st, brokenDedup{}, discardLogger())
	require.NoError(t, err)

	ok, err := svc.Notify(context.Background(), &model.Notification{TenantID: "t1", Type: "x", Title: "y"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, st.items, 1)
}

func TestService_StoreFailure(t *testing.T) {
	st := &memStore{err: errors.New("db down")}
	svc, err := notify.NewService(st, notify.NewMemoryDeduplicator(time.Second, time.Second, notify.WithoutSweeper()), discardLogger())
	require.NoError(t, err)

	_, err = svc.Notify(context.Background(), &model.Notification{TenantID: "t1", Type: "x", Title: "y"})
	require.Error(t, err)
}

func TestService_RetryAfterStoreFailure(t *testing.T) {
	st := &memStore{err: errors.New("db down")}
	dedup := notify.NewMemoryDeduplicator(30*time.Second, 5*time.Minute, notify.WithoutSweeper())
	defer dedup.Close() //nolint:errcheck
	svc, err := notify.NewService(st, dedup, discardLogger())
	require.NoError(t, err)
	ctx := context.Background()
	n := func() *model.Notification {
		return &model.Notification{TenantID: "t1", Type: model.NotificationDevisSent, Title: "Devis envoyé", Message: "DEV-2026-0002"}
	}

	ok, err := svc.Notify(ctx, n())
	require.Error(t, err)
	assert.False(t, ok)
	assert.Zero(t, dedup.Len(), "key released after the failed write")

	st.mu.Lock()
	st.err = nil
	st.mu.Unlock()

	ok, err = svc.Notify(ctx, n())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, st.items, 1)

	ok, err = svc.Notify(ctx, n())
	require.NoError(t, err)
	assert.False(t, ok, "stored notification still deduplicates")
}

func TestMemoryDeduplicator_Forget(t *testing.T) {
	d := notify.NewMemoryDeduplicator(30*time.Second, 5*time.Minute, notify.WithoutSweeper())
	defer d.Close() //nolint:errcheck
	ctx := context.Background()

	ok, _ := d.ShouldSend(ctx, "k")
	require.True(t, ok)
	require.NoError(t, d.Forget(ctx, "k"))
	ok, _ = d.ShouldSend(ctx, "k")
	assert.True(t, ok)
	require.NoError(t, d.Forget(ctx, "missing"))
}

func TestRedisDeduplicator(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	d, err := notify.NewRedisDeduplicator(ctx, addr, "", 0, 2*time.Second)
	require.NoError(t, err)
	defer d.Close() //nolint:errcheck
	require.NoError(t, d.Ping(ctx))

	key := notify.Key("t-redis", "x", time.Now().String(), "")
	ok, err := d.ShouldSend(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = d.ShouldSend(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Forget(ctx, key))
	ok, err = d.ShouldSend(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}
