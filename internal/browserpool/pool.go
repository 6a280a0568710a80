// Package browserpool manages a single long-lived Chrome process and
// lends out a bounded number of concurrently open tabs. Pool
// exhaustion is backpressure, not an error: callers queue FIFO until a
// slot frees. The browser is retired on age and relaunched lazily on
// the next acquisition; a crash rejects every queued waiter so nothing
// hangs.
package browserpool

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"tripcost-scraper/internal/config"
	"tripcost-scraper/internal/models"
)

// Browser abstracts one OS-level browser process so the pool's state
// machine does not depend on a live Chrome.
type Browser interface {
	// Done is closed when the process exits, expected or not.
	Done() <-chan struct{}
	Close()
	// NewTab opens a pre-configured tab carrying the given user agent.
	NewTab(userAgent string) (context.Context, context.CancelFunc, error)
}

// Launcher starts a browser process.
type Launcher func() (Browser, error)

type browserEntry struct {
	br        Browser
	createdAt time.Time
}

type waiter struct {
	ch chan error
}

// Lease is one borrowed browser tab, exclusively owned by its caller
// until released. Ctx is a chromedp tab context ready for Run calls;
// the tab already has its user agent, stealth patches and resource
// blocking applied.
type Lease struct {
	Ctx       context.Context
	UserAgent string

	cancel context.CancelFunc
	pool   *Pool
	once   sync.Once
}

// Release closes the tab and frees the slot, waking the earliest
// queued waiter if any. Callers must release exactly once per
// successful Acquire, on error paths included; defer is the usual way.
// Extra calls are no-ops.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.cancel()
		l.pool.freeSlot()
	})
}

// Stats tracks pool usage counters for monitoring.
type Stats struct {
	Acquired int64
	Released int64
	Launched int64
	Retired  int64
	Crashed  int64
}

// Pool is the process-wide page pool. All mutable state (the browser
// handle, the lease counter, the wait queue) lives behind one mutex so
// the capacity and FIFO invariants are enforced at a single choke
// point.
type Pool struct {
	mu      sync.Mutex
	cfg     config.PoolConfig
	uas     []string
	log     zerolog.Logger
	launch  Launcher
	now     func() time.Time
	browser *browserEntry
	active  int
	waiters []*waiter
	closed  bool
	stats   Stats
}

// NewPool creates a page pool over a real Chrome launcher. The
// process is not started until the first Acquire.
func NewPool(cfg config.PoolConfig, userAgents []string, log zerolog.Logger) *Pool {
	p := newPool(cfg, userAgents, log)
	p.launch = p.launchChrome
	return p
}

// NewPoolWithLauncher creates a page pool over a custom launcher.
func NewPoolWithLauncher(cfg config.PoolConfig, userAgents []string, log zerolog.Logger, launch Launcher) *Pool {
	p := newPool(cfg, userAgents, log)
	p.launch = launch
	return p
}

func newPool(cfg config.PoolConfig, userAgents []string, log zerolog.Logger) *Pool {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	if len(userAgents) == 0 {
		userAgents = config.DefaultUserAgents()
	}
	return &Pool{
		cfg: cfg,
		uas: userAgents,
		log: log,
		now: time.Now,
	}
}

// Acquire returns a ready-to-use tab. It launches the browser if
// absent, retires a stale one first, and blocks FIFO when the lease
// cap is reached. A retirement rejects the call with
// models.ErrBrowserRetired; retrying relaunches transparently.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, models.ErrPoolClosed
	}

	// Age is checked lazily at acquisition, not by a timer.
	if p.browser != nil && p.now().Sub(p.browser.createdAt) > p.cfg.MaxBrowserAge {
		p.log.Info().
			Dur("age", p.now().Sub(p.browser.createdAt)).
			Msg("retiring aged browser")
		p.stats.Retired++
		p.teardownLocked(models.ErrBrowserRetired)
		p.mu.Unlock()
		return nil, models.ErrBrowserRetired
	}

	if p.active >= p.cfg.MaxPages {
		w := &waiter{ch: make(chan error, 1)}
		p.waiters = append(p.waiters, w)
		p.log.Debug().Int("queued", len(p.waiters)).Msg("pool saturated, queueing")
		p.mu.Unlock()

		select {
		case err := <-w.ch:
			if err != nil {
				return nil, err
			}
			// Granted: the releaser transferred its slot to us.
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				return nil, models.ErrPoolClosed
			}
		case <-ctx.Done():
			p.abandon(w)
			return nil, ctx.Err()
		}
	} else {
		p.active++
	}

	if p.browser == nil {
		br, err := p.launch()
		if err != nil {
			p.active--
			p.grantLocked()
			p.mu.Unlock()
			return nil, err
		}
		entry := &browserEntry{br: br, createdAt: p.now()}
		p.browser = entry
		p.stats.Launched++
		go p.watchCrash(entry)
		p.log.Info().Time("created_at", entry.createdAt).Msg("browser launched")
	}
	entry := p.browser
	ua := p.uas[rand.Intn(len(p.uas))]
	p.stats.Acquired++
	p.mu.Unlock()

	tabCtx, cancel, err := entry.br.NewTab(ua)
	if err != nil {
		p.freeSlot()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	p.log.Debug().Str("user_agent", ua).Msg("page leased")
	return &Lease{Ctx: tabCtx, UserAgent: ua, cancel: cancel, pool: p}, nil
}

// Shutdown fails all queued waiters, closes the browser process if
// present and resets all counters. Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.teardownLocked(models.ErrPoolClosed)
	stats := p.stats
	p.mu.Unlock()

	p.log.Info().
		Int64("acquired", stats.Acquired).
		Int64("released", stats.Released).
		Int64("launched", stats.Launched).
		Msg("page pool shut down")
}

// Active returns the number of currently outstanding leases.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// GetStats returns a snapshot of the usage counters.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// freeSlot returns one lease slot, handing it to the earliest waiter
// when one is queued.
func (p *Pool) freeSlot() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Released++
	if p.transferLocked() {
		return
	}
	if p.active > 0 {
		p.active--
	}
}

// transferLocked hands the caller's slot to the earliest waiter.
// Returns false when the queue is empty and the slot should be freed
// instead.
func (p *Pool) transferLocked() bool {
	if len(p.waiters) == 0 || p.closed {
		return false
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	w.ch <- nil
	return true
}

// grantLocked wakes the earliest waiter into a freshly freed slot.
// Used when an acquisition fails after the slot count was already
// taken, so capacity is not stranded.
func (p *Pool) grantLocked() {
	if len(p.waiters) == 0 || p.closed || p.active >= p.cfg.MaxPages {
		return
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	p.active++
	w.ch <- nil
}

// teardownLocked closes the browser and rejects every queued waiter
// with cause. Counters reset to zero so the next Acquire relaunches
// cleanly.
func (p *Pool) teardownLocked(cause error) {
	for _, w := range p.waiters {
		w.ch <- cause
	}
	p.waiters = nil
	p.active = 0
	if entry := p.browser; entry != nil {
		p.browser = nil
		entry.br.Close()
	}
}

// abandon removes a waiter whose caller gave up. If the grant raced
// the cancellation, the slot is returned.
func (p *Pool) abandon(w *waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, q := range p.waiters {
		if q == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
	select {
	case err := <-w.ch:
		if err == nil && !p.transferLocked() && p.active > 0 {
			p.active--
		}
	default:
	}
}

// watchCrash rejects all queued work when the underlying process
// reports an unexpected disconnect. In-flight leases see their own
// tab operations fail; their later Release finds the counters already
// reset.
func (p *Pool) watchCrash(entry *browserEntry) {
	<-entry.br.Done()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.browser != entry {
		// Shutdown or retirement already handled this process.
		return
	}
	p.log.Warn().Msg("browser process disconnected unexpectedly")
	p.stats.Crashed++
	p.teardownLocked(models.ErrBrowserCrashed)
}

// chromeBrowser is the production Browser backed by chromedp.
type chromeBrowser struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

func (b *chromeBrowser) Done() <-chan struct{} { return b.ctx.Done() }

func (b *chromeBrowser) Close() {
	b.cancelBrowser()
	b.cancelAlloc()
}

// NewTab opens a tab with the user agent applied, stealth patches
// installed before any site script, and image/font/media/stylesheet
// fetches aborted.
func (b *chromeBrowser) NewTab(userAgent string) (context.Context, context.CancelFunc, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetBlockedURLS(blockedURLPatterns),
		emulation.SetAutomationOverride(false),
		emulation.SetUserAgentOverride(userAgent),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		tabCancel()
		return nil, nil, err
	}
	return tabCtx, tabCancel, nil
}

// launchChrome starts a real Chrome process.
func (p *Pool) launchChrome() (Browser, error) {
	execPath, err := ResolveExecutable(p.cfg.ChromePath)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("lang", "en-US,en"),
		chromedp.WindowSize(1366, 900),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the process now so a failed launch surfaces here rather
	// than on the first tab, and so the context tracks the process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser at %s: %w", execPath, err)
	}

	return &chromeBrowser{
		ctx:           browserCtx,
		cancelBrowser: browserCancel,
		cancelAlloc:   allocCancel,
	}, nil
}
