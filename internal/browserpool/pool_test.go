package browserpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"tripcost-scraper/internal/config"
	"tripcost-scraper/internal/models"
)

type fakeBrowser struct {
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
	tabs   int
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{done: make(chan struct{})}
}

func (b *fakeBrowser) Done() <-chan struct{} { return b.done }

func (b *fakeBrowser) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.done)
	})
}

func (b *fakeBrowser) crash() {
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *fakeBrowser) NewTab(userAgent string) (context.Context, context.CancelFunc, error) {
	b.mu.Lock()
	b.tabs++
	b.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	return ctx, cancel, nil
}

func (b *fakeBrowser) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type fakeLauncher struct {
	mu       sync.Mutex
	launched int
	browsers []*fakeBrowser
	err      error
}

func (l *fakeLauncher) launch() (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.launched++
	br := newFakeBrowser()
	l.browsers = append(l.browsers, br)
	return br, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launched
}

func (l *fakeLauncher) last() *fakeBrowser {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.browsers) == 0 {
		return nil
	}
	return l.browsers[len(l.browsers)-1]
}

func testPoolConfig() config.PoolConfig {
	return config.PoolConfig{
		MaxPages:      3,
		MaxBrowserAge: 30 * time.Minute,
	}
}

func newTestPool(t *testing.T) (*Pool, *fakeLauncher) {
	t.Helper()
	launcher := &fakeLauncher{}
	p := NewPoolWithLauncher(testPoolConfig(), config.DefaultUserAgents(), zerolog.Nop(), launcher.launch)
	t.Cleanup(p.Shutdown)
	return p, launcher
}

func queuedWaiters(p *Pool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

func TestAcquireRespectsCapacity(t *testing.T) {
	p, launcher := newTestPool(t)
	ctx := context.Background()

	var leases []*Lease
	for i := 0; i < 3; i++ {
		lease, err := p.Acquire(ctx)
		require.NoError(t, err)
		require.NotNil(t, lease.Ctx)
		require.NotEmpty(t, lease.UserAgent)
		leases = append(leases, lease)
	}
	assert.Equal(t, 3, p.Active())
	assert.Equal(t, 1, launcher.count(), "all leases share one browser")

	// A fourth caller must block, not error.
	blockedCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err := p.Acquire(blockedCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, p.Active())

	for _, lease := range leases {
		lease.Release()
	}
	assert.Equal(t, 0, p.Active())
}

func TestAcquireWakesWaitersInOrder(t *testing.T) {
	p, _ := newTestPool(t)
	ctx := context.Background()

	var leases []*Lease
	for i := 0; i < 3; i++ {
		lease, err := p.Acquire(ctx)
		require.NoError(t, err)
		leases = append(leases, lease)
	}

	order := make(chan string, 3)
	hold := make(chan struct{})
	var wg sync.WaitGroup
	for i, name := range []string{"a", "b", "c"} {
		name := name // capture range variable: go directive is below 1.22
		want := i + 1
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := p.Acquire(ctx)
			if err != nil {
				return
			}
			order <- name
			<-hold
			lease.Release()
		}()
		// Queue one at a time so the arrival order is deterministic.
		require.Eventually(t, func() bool {
			return queuedWaiters(p) == want
		}, time.Second, 5*time.Millisecond)
	}

	for i, want := range []string{"a", "b", "c"} {
		leases[i].Release()
		select {
		case got := <-order:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("waiter %q was never granted a slot", want)
		}
	}
	close(hold)
	wg.Wait()
}

func TestReleaseTransfersSlotToWaiter(t *testing.T) {
	p, _ := newTestPool(t)
	ctx := context.Background()

	var leases []*Lease
	for i := 0; i < 3; i++ {
		lease, err := p.Acquire(ctx)
		require.NoError(t, err)
		leases = append(leases, lease)
	}

	done := make(chan *Lease, 1)
	go func() {
		lease, err := p.Acquire(ctx)
		if err != nil {
			done <- nil
			return
		}
		done <- lease
	}()
	require.Eventually(t, func() bool {
		return queuedWaiters(p) == 1
	}, time.Second, 5*time.Millisecond)

	leases[0].Release()
	lease := <-done
	require.NotNil(t, lease)
	// The slot moved, it was never freed in between.
	assert.Equal(t, 3, p.Active())
	lease.Release()
	leases[1].Release()
	leases[2].Release()
	assert.Equal(t, 0, p.Active())
}

func TestReleaseIsIdempotent(t *testing.T) {
	p, _ := newTestPool(t)

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()
	lease.Release()
	lease.Release()
	assert.Equal(t, 0, p.Active())
	assert.Equal(t, int64(1), p.GetStats().Released)
}

func TestAgedBrowserIsRetired(t *testing.T) {
	p, launcher := newTestPool(t)
	ctx := context.Background()

	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }

	lease, err := p.Acquire(ctx)
	require.NoError(t, err)
	lease.Release()
	first := launcher.last()

	clock = clock.Add(31 * time.Minute)
	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, models.ErrBrowserRetired)
	assert.True(t, first.isClosed(), "retired browser must be closed")
	assert.Equal(t, 0, p.Active())

	// The retry gets a fresh process.
	lease, err = p.Acquire(ctx)
	require.NoError(t, err)
	defer lease.Release()
	assert.Equal(t, 2, launcher.count())
	assert.Equal(t, int64(1), p.GetStats().Retired)
}

func TestRetirementRejectsQueuedWaiters(t *testing.T) {
	p, _ := newTestPool(t)
	ctx := context.Background()

	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }

	var leases []*Lease
	for i := 0; i < 3; i++ {
		lease, err := p.Acquire(ctx)
		require.NoError(t, err)
		leases = append(leases, lease)
	}

	waiterErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		waiterErr <- err
	}()
	require.Eventually(t, func() bool {
		return queuedWaiters(p) == 1
	}, time.Second, 5*time.Millisecond)

	clock = clock.Add(31 * time.Minute)
	_, err := p.Acquire(ctx)
	require.ErrorIs(t, err, models.ErrBrowserRetired)

	select {
	case err := <-waiterErr:
		require.ErrorIs(t, err, models.ErrBrowserRetired)
	case <-time.After(time.Second):
		t.Fatal("queued waiter was not rejected")
	}
	assert.Equal(t, 0, p.Active())

	// Stale leases releasing after the teardown must not corrupt the
	// counter.
	for _, lease := range leases {
		lease.Release()
	}
	assert.Equal(t, 0, p.Active())
}

func TestCrashRejectsQueuedWaiters(t *testing.T) {
	p, launcher := newTestPool(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Acquire(ctx)
		require.NoError(t, err)
	}

	waiterErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		waiterErr <- err
	}()
	require.Eventually(t, func() bool {
		return queuedWaiters(p) == 1
	}, time.Second, 5*time.Millisecond)

	launcher.last().crash()

	select {
	case err := <-waiterErr:
		require.ErrorIs(t, err, models.ErrBrowserCrashed)
	case <-time.After(time.Second):
		t.Fatal("queued waiter was not rejected after crash")
	}
	require.Eventually(t, func() bool {
		return p.Active() == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), p.GetStats().Crashed)

	// The pool recovers on the next acquisition.
	lease, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer lease.Release()
	assert.Equal(t, 2, launcher.count())
}

func TestShutdownRejectsWaitersAndFutureAcquires(t *testing.T) {
	launcher := &fakeLauncher{}
	p := NewPoolWithLauncher(testPoolConfig(), config.DefaultUserAgents(), zerolog.Nop(), launcher.launch)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := p.Acquire(ctx)
		require.NoError(t, err)
	}

	waiterErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		waiterErr <- err
	}()
	require.Eventually(t, func() bool {
		return queuedWaiters(p) == 1
	}, time.Second, 5*time.Millisecond)

	p.Shutdown()
	p.Shutdown() // idempotent

	select {
	case err := <-waiterErr:
		require.ErrorIs(t, err, models.ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("queued waiter was not rejected on shutdown")
	}

	_, err := p.Acquire(ctx)
	require.ErrorIs(t, err, models.ErrPoolClosed)
	assert.True(t, launcher.last().isClosed())
	assert.Equal(t, 0, p.Active())
}

func TestConcurrentAcquireReleaseNeverExceedsCap(t *testing.T) {
	p, launcher := newTestPool(t)

	var current, peak atomic.Int32
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			lease, err := p.Acquire(ctx)
			if err != nil {
				return err
			}
			n := current.Add(1)
			for {
				m := peak.Load()
				if n <= m || peak.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)
			lease.Release()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, 0, p.Active())
	assert.Equal(t, 1, launcher.count())

	stats := p.GetStats()
	assert.Equal(t, int64(20), stats.Acquired)
	assert.Equal(t, int64(20), stats.Released)
}

func TestLaunchFailureFreesSlot(t *testing.T) {
	launcher := &fakeLauncher{err: models.ErrNoBrowserExecutable}
	p := NewPoolWithLauncher(testPoolConfig(), config.DefaultUserAgents(), zerolog.Nop(), launcher.launch)
	t.Cleanup(p.Shutdown)

	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, models.ErrNoBrowserExecutable)
	assert.Equal(t, 0, p.Active())

	// The failure must not wedge the pool.
	launcher.mu.Lock()
	launcher.err = nil
	launcher.mu.Unlock()
	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()
}
