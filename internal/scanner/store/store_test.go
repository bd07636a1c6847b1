package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/martpos/internal/clock"
	"github.com/smallbiznis/martpos/internal/scanner/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testStart      = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	testSessionEnd = testStart.Add(8 * time.Hour)
)

type backend struct {
	store   domain.Store
	advance func(time.Duration)
}

func testOptions() Options {
	return Options{TokenTTL: 15 * time.Minute, MaxQueue: 200, IdleTimeout: time.Hour}
}

func newMemoryBackend(t *testing.T, opts Options) backend {
	t.Helper()
	clk := clock.NewFakeClock(testStart)
	return backend{store: NewMemoryStore(opts, clk), advance: clk.Advance}
}

func newRedisBackend(t *testing.T, opts Options) backend {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clk := clock.NewFakeClock(testStart)
	s, err := NewRedisStore(client, opts, clk)
	require.NoError(t, err)
	return backend{
		store: s,
		advance: func(d time.Duration) {
			clk.Advance(d)
			mr.FastForward(d)
		},
	}
}

func forEachBackend(t *testing.T, opts Options, fn func(t *testing.T, b backend)) {
	t.Run("memory", func(t *testing.T) { fn(t, newMemoryBackend(t, opts)) })
	t.Run("redis", func(t *testing.T) { fn(t, newRedisBackend(t, opts)) })
}

func scan(barcode string) domain.ScannedItem {
	return domain.ScannedItem{Barcode: barcode}
}

func barcodes(items []domain.ScannedItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Barcode)
	}
	return out
}

// bound activates desktopID and binds one phone to it.
func bound(t *testing.T, b backend, desktopID string) (domain.Activation, domain.Binding) {
	t.Helper()
	ctx := context.Background()
	act, err := b.store.Activate(ctx, desktopID, testSessionEnd)
	require.NoError(t, err)
	binding, err := b.store.BindMobile(ctx, act.Token)
	require.NoError(t, err)
	return act, binding
}

func TestEnqueueAfterDeactivateIsNotActive(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		ctx := context.Background()

		_, err := b.store.Activate(ctx, "desk-1", testSessionEnd)
		require.NoError(t, err)
		require.NoError(t, b.store.Deactivate(ctx, "desk-1"))

		err = b.store.Enqueue(ctx, "desk-1", scan("111"))
		assert.ErrorIs(t, err, domain.ErrNotActive)

		active, err := b.store.CheckActive(ctx, "desk-1")
		require.NoError(t, err)
		assert.False(t, active)
	})
}

func TestEnqueueWithoutActivation(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		err := b.store.Enqueue(context.Background(), "never", scan("111"))
		assert.ErrorIs(t, err, domain.ErrNotActive)
	})
}

func TestDeactivateInvalidatesBoundToken(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		ctx := context.Background()

		act, err := b.store.Activate(ctx, "desk-1", testSessionEnd)
		require.NoError(t, err)
		binding, err := b.store.BindMobile(ctx, act.Token)
		require.NoError(t, err)
		assert.Equal(t, "desk-1", binding.DesktopSessionID)
		assert.NotEmpty(t, binding.MobileSessionToken)

		require.NoError(t, b.store.Deactivate(ctx, "desk-1"))

		_, err = b.store.EnqueueMobile(ctx, binding.MobileSessionToken, scan("111"))
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)
		_, err = b.store.CheckMobile(ctx, binding.MobileSessionToken)
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)
		_, err = b.store.BindMobile(ctx, act.Token)
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)
	})
}

func TestDeactivateInactiveIsNoop(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		assert.NoError(t, b.store.Deactivate(context.Background(), "nobody"))
	})
}

func TestDrainIsConsumingAndFIFO(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		ctx := context.Background()

		_, err := b.store.Activate(ctx, "desk-1", testSessionEnd)
		require.NoError(t, err)
		require.NoError(t, b.store.Enqueue(ctx, "desk-1", scan("A")))
		require.NoError(t, b.store.Enqueue(ctx, "desk-1", scan("B")))
		require.NoError(t, b.store.Enqueue(ctx, "desk-1", scan("C")))

		items, err := b.store.Drain(ctx, "desk-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C"}, barcodes(items))
		for _, item := range items {
			assert.True(t, item.Consumed)
		}

		items, err = b.store.Drain(ctx, "desk-1")
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})
}

func TestDrainUnknownSessionIsEmpty(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		items, err := b.store.Drain(context.Background(), "nobody")
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})
}

func TestReactivationRotatesToken(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		ctx := context.Background()

		first, err := b.store.Activate(ctx, "desk-1", testSessionEnd)
		require.NoError(t, err)
		require.NoError(t, b.store.Enqueue(ctx, "desk-1", scan("kept")))

		b.advance(time.Minute)
		second, err := b.store.Activate(ctx, "desk-1", testSessionEnd)
		require.NoError(t, err)

		assert.NotEqual(t, first.Token, second.Token)
		assert.Equal(t, first.ActivatedAt, second.ActivatedAt)

		_, err = b.store.BindMobile(ctx, first.Token)
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)
		_, err = b.store.BindMobile(ctx, second.Token)
		assert.NoError(t, err)

		items, err := b.store.Drain(ctx, "desk-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"kept"}, barcodes(items))
	})
}

func TestBindReplacesPreviousBinding(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		ctx := context.Background()

		act, err := b.store.Activate(ctx, "desk-1", testSessionEnd)
		require.NoError(t, err)
		first, err := b.store.BindMobile(ctx, act.Token)
		require.NoError(t, err)
		second, err := b.store.BindMobile(ctx, act.Token)
		require.NoError(t, err)
		assert.NotEqual(t, first.MobileSessionToken, second.MobileSessionToken)

		_, err = b.store.EnqueueMobile(ctx, first.MobileSessionToken, scan("from-a"))
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)
		_, err = b.store.CheckMobile(ctx, first.MobileSessionToken)
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)

		id, err := b.store.CheckMobile(ctx, second.MobileSessionToken)
		require.NoError(t, err)
		assert.Equal(t, "desk-1", id)
		_, err = b.store.EnqueueMobile(ctx, second.MobileSessionToken, scan("from-b"))
		require.NoError(t, err)

		items, err := b.store.Drain(ctx, "desk-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"from-b"}, barcodes(items))
	})
}

func TestActivationTokenCannotSubmit(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		ctx := context.Background()

		act, _ := bound(t, b, "desk-1")

		_, err := b.store.EnqueueMobile(ctx, act.Token, scan("111"))
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)
		_, err = b.store.CheckMobile(ctx, act.Token)
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)
	})
}

func TestReactivationDropsMobileBinding(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		ctx := context.Background()

		_, binding := bound(t, b, "desk-1")
		_, err := b.store.Activate(ctx, "desk-1", testSessionEnd)
		require.NoError(t, err)

		_, err = b.store.EnqueueMobile(ctx, binding.MobileSessionToken, scan("111"))
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)
	})
}

func TestTokenExpires(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		ctx := context.Background()

		act, err := b.store.Activate(ctx, "desk-1", testSessionEnd)
		require.NoError(t, err)
		assert.Equal(t, testStart.Add(15*time.Minute), act.TokenExpiresAt)

		b.advance(16 * time.Minute)

		_, err = b.store.BindMobile(ctx, act.Token)
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)

		active, err := b.store.CheckActive(ctx, "desk-1")
		require.NoError(t, err)
		assert.True(t, active)
	})
}

func TestMobileTTLSlidesOnUse(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		ctx := context.Background()

		act, err := b.store.Activate(ctx, "desk-1", testSessionEnd)
		require.NoError(t, err)

		b.advance(10 * time.Minute)
		binding, err := b.store.BindMobile(ctx, act.Token)
		require.NoError(t, err)
		assert.Equal(t, testStart.Add(25*time.Minute), binding.ExpiresAt)

		b.advance(10 * time.Minute)
		_, err = b.store.EnqueueMobile(ctx, binding.MobileSessionToken, scan("111"))
		require.NoError(t, err)

		b.advance(14 * time.Minute)
		_, err = b.store.EnqueueMobile(ctx, binding.MobileSessionToken, scan("222"))
		require.NoError(t, err)

		b.advance(16 * time.Minute)
		_, err = b.store.EnqueueMobile(ctx, binding.MobileSessionToken, scan("333"))
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)
	})
}

func TestSessionExpiryEndsActivation(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		ctx := context.Background()
		sessionEnd := testStart.Add(30 * time.Minute)

		act, err := b.store.Activate(ctx, "desk-1", sessionEnd)
		require.NoError(t, err)
		assert.Equal(t, sessionEnd, act.SessionExpiresAt)

		for i := 0; i < 2; i++ {
			b.advance(10 * time.Minute)
			act, err = b.store.Activate(ctx, "desk-1", sessionEnd)
			require.NoError(t, err)
		}
		assert.Equal(t, sessionEnd, act.TokenExpiresAt)

		binding, err := b.store.BindMobile(ctx, act.Token)
		require.NoError(t, err)
		assert.Equal(t, sessionEnd, binding.ExpiresAt)

		b.advance(5 * time.Minute)
		_, err = b.store.EnqueueMobile(ctx, binding.MobileSessionToken, scan("before"))
		require.NoError(t, err)

		b.advance(6 * time.Minute)
		_, err = b.store.EnqueueMobile(ctx, binding.MobileSessionToken, scan("after"))
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)
		assert.ErrorIs(t, b.store.Enqueue(ctx, "desk-1", scan("after")), domain.ErrNotActive)

		active, err := b.store.CheckActive(ctx, "desk-1")
		require.NoError(t, err)
		assert.False(t, active)

		_, err = b.store.Activate(ctx, "desk-1", sessionEnd)
		assert.ErrorIs(t, err, domain.ErrInvalidDesktopSession)
	})
}

func TestStoreStampsSubmissionTime(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		ctx := context.Background()

		_, binding := bound(t, b, "desk-1")

		b.advance(time.Minute)
		stale := scan("111")
		stale.SubmittedAt = testStart.Add(-time.Hour)
		queued, err := b.store.EnqueueMobile(ctx, binding.MobileSessionToken, stale)
		require.NoError(t, err)
		assert.Equal(t, testStart.Add(time.Minute), queued.SubmittedAt)
		assert.NotEmpty(t, queued.ID)

		b.advance(time.Minute)
		require.NoError(t, b.store.Enqueue(ctx, "desk-1", scan("222")))

		items, err := b.store.Drain(ctx, "desk-1")
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, queued.ID, items[0].ID)
		assert.Equal(t, testStart.Add(time.Minute), items[0].SubmittedAt)
		assert.Equal(t, testStart.Add(2*time.Minute), items[1].SubmittedAt)
	})
}

func TestQueueIsBounded(t *testing.T) {
	opts := testOptions()
	opts.MaxQueue = 2
	forEachBackend(t, opts, func(t *testing.T, b backend) {
		ctx := context.Background()

		_, binding := bound(t, b, "desk-1")
		require.NoError(t, b.store.Enqueue(ctx, "desk-1", scan("1")))
		_, err := b.store.EnqueueMobile(ctx, binding.MobileSessionToken, scan("2"))
		require.NoError(t, err)

		assert.ErrorIs(t, b.store.Enqueue(ctx, "desk-1", scan("3")), domain.ErrQueueFull)
		_, err = b.store.EnqueueMobile(ctx, binding.MobileSessionToken, scan("3"))
		assert.ErrorIs(t, err, domain.ErrQueueFull)

		items, err := b.store.Drain(ctx, "desk-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, barcodes(items))
	})
}

func TestActivateRejectsEmptySession(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		_, err := b.store.Activate(context.Background(), "", testSessionEnd)
		assert.ErrorIs(t, err, domain.ErrInvalidDesktopSession)
	})
}

func TestConcurrentEnqueueDeliversEachItemOnce(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		ctx := context.Background()
		const n = 64

		_, binding := bound(t, b, "desk-1")

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			batches [][]domain.ScannedItem
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				b.advance(time.Millisecond)
				if _, err := b.store.EnqueueMobile(ctx, binding.MobileSessionToken, scan(fmt.Sprintf("item-%d", i))); err != nil {
					t.Errorf("enqueue %d: %v", i, err)
				}
			}(i)
			if i%8 == 0 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					items, err := b.store.Drain(ctx, "desk-1")
					if err != nil {
						t.Errorf("drain: %v", err)
						return
					}
					mu.Lock()
					batches = append(batches, items)
					mu.Unlock()
				}()
			}
		}
		wg.Wait()

		rest, err := b.store.Drain(ctx, "desk-1")
		require.NoError(t, err)
		batches = append(batches, rest)

		seen := make(map[string]int, n)
		for _, batch := range batches {
			for i, item := range batch {
				seen[item.Barcode]++
				if i > 0 {
					assert.False(t, item.SubmittedAt.Before(batch[i-1].SubmittedAt), "queue order disagrees with submission time")
				}
			}
		}
		assert.Len(t, seen, n)
		for barcode, count := range seen {
			assert.Equal(t, 1, count, barcode)
		}
	})
}

func TestSessionsDoNotShareState(t *testing.T) {
	forEachBackend(t, testOptions(), func(t *testing.T, b backend) {
		ctx := context.Background()

		_, err := b.store.Activate(ctx, "desk-1", testSessionEnd)
		require.NoError(t, err)
		_, err = b.store.Activate(ctx, "desk-2", testSessionEnd)
		require.NoError(t, err)
		require.NoError(t, b.store.Enqueue(ctx, "desk-1", scan("one")))
		require.NoError(t, b.store.Deactivate(ctx, "desk-2"))

		items, err := b.store.Drain(ctx, "desk-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"one"}, barcodes(items))
	})
}

func TestSweepEvictsIdleActivations(t *testing.T) {
	clk := clock.NewFakeClock(testStart)
	s := NewMemoryStore(testOptions(), clk)
	ctx := context.Background()

	idle, err := s.Activate(ctx, "idle", testSessionEnd)
	require.NoError(t, err)
	_, err = s.Activate(ctx, "busy", testSessionEnd)
	require.NoError(t, err)

	clk.Advance(50 * time.Minute)
	require.NoError(t, s.Enqueue(ctx, "busy", scan("x")))

	clk.Advance(20 * time.Minute)
	assert.Equal(t, 1, s.Sweep(clk.Now()))

	active, err := s.CheckActive(ctx, "idle")
	require.NoError(t, err)
	assert.False(t, active)
	_, err = s.BindMobile(ctx, idle.Token)
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)

	active, err = s.CheckActive(ctx, "busy")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestSweepEvictsExpiredSessions(t *testing.T) {
	clk := clock.NewFakeClock(testStart)
	s := NewMemoryStore(testOptions(), clk)
	ctx := context.Background()

	_, err := s.Activate(ctx, "short", testStart.Add(10*time.Minute))
	require.NoError(t, err)
	_, err = s.Activate(ctx, "long", testSessionEnd)
	require.NoError(t, err)

	clk.Advance(11 * time.Minute)
	assert.Equal(t, 1, s.Sweep(clk.Now()))

	active, err := s.CheckActive(ctx, "long")
	require.NoError(t, err)
	assert.True(t, active)
}
