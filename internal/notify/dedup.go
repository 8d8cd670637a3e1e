// Package notify creates in-app notifications and suppresses duplicates
// raised within a short window.
package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Deduplicator decides whether a notification key may be sent now.
type Deduplicator interface {
	// ShouldSend returns true and records the key when no send with the same
	// key happened within the window.
	ShouldSend(ctx context.Context, key string) (bool, error)
	// Forget drops a recorded key so the next ShouldSend succeeds.
	Forget(ctx context.Context, key string) error
	Close() error
}

func normalize(s string) string {
	// A Caser holds state and is not shared between goroutines.
	s = cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// Key identifies equivalent notifications: same tenant and type, and title
// and message equal after Unicode, case and whitespace normalization.
func Key(tenantID, typ, title, message string) string {
	h := sha256.New()
	for _, part := range []string{tenantID, typ, normalize(title), normalize(message)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryDeduplicator is a process-local Deduplicator. A background sweep
// drops keys older than the retention period.
type MemoryDeduplicator struct {
	window    time.Duration
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// MemoryOption configures a MemoryDeduplicator.
type MemoryOption func(*MemoryDeduplicator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryDeduplicator) { m.now = now }
}

// WithoutSweeper disables the background sweep; Sweep must be called by
// hand.
func WithoutSweeper() MemoryOption {
	return func(m *MemoryDeduplicator) { m.stop = nil }
}

// NewMemoryDeduplicator returns a MemoryDeduplicator and starts its sweep.
func NewMemoryDeduplicator(window, retention time.Duration, opts ...MemoryOption) *MemoryDeduplicator {
	m := &MemoryDeduplicator{
		window:    window,
		retention: max(retention, window),
		now:       time.Now,
		entries:   make(map[string]time.Time),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.stop != nil {
		m.wg.Add(1)
		go m.sweepLoop()
	}
	return m
}

// ShouldSend implements Deduplicator.
func (m *MemoryDeduplicator) ShouldSend(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if sentAt, ok := m.entries[key]; ok && now.Sub(sentAt) < m.window {
		return false, nil
	}
	m.entries[key] = now
	return true, nil
}

// Forget implements Deduplicator.
func (m *MemoryDeduplicator) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Sweep removes entries older than the retention period and returns how
// many were dropped.
func (m *MemoryDeduplicator) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.retention)
	dropped := 0
	for key, sentAt := range m.entries {
		if sentAt.Before(cutoff) {
			delete(m.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of tracked keys.
func (m *MemoryDeduplicator) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the sweep. Safe to call more than once.
func (m *MemoryDeduplicator) Close() error {
	m.closeOnce.Do(func() {
		if m.stop != nil {
			close(m.stop)
			m.wg.Wait()
		}
	})
	return nil
}

func (m *MemoryDeduplicator) sweepLoop() {
	defer m.wg.Done()

	period := m.window
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// RedisDeduplicator shares dedup state across instances with SET NX and a
// TTL equal to the window.
type RedisDeduplicator struct {
	client    *redis.Client
	window    time.Duration
	keyPrefix string
}

// NewRedisDeduplicator connects to addr and verifies the connection.
func NewRedisDeduplicator(ctx context.Context, addr, password string, db int, window time.Duration) (*RedisDeduplicator, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisDeduplicatorWithClient(client, window), nil
}

// NewRedisDeduplicatorWithClient wraps an existing client.
func NewRedisDeduplicatorWithClient(client *redis.Client, window time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, window: window, keyPrefix: "notify:dedup:"}
}

// ShouldSend implements Deduplicator.
func (r *RedisDeduplicator) ShouldSend(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.keyPrefix+key, "1", r.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Forget implements Deduplicator.
func (r *RedisDeduplicator) Forget(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks connectivity; it makes the deduplicator a health.Pinger.
func (r *RedisDeduplicator) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *RedisDeduplicator) Close() error { return r.client.Close() }
