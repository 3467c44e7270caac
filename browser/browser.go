// Package browser provides headless Chromium sessions backed by go-rod.
//
// A Pool owns one Chromium process, launched on first use. Every Launch call
// opens an isolated incognito context with a single page; closing the Session
// disposes the context. The number of simultaneous sessions is bounded, and
// the process is recycled once it has served too many sessions, grown too
// old or kept failing.
package browser

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/pagehealth/config"
	"github.com/use-agent/pagehealth/models"
)

// Session is one scoped browser tab. Callers must Close it on every path.
type Session interface {
	// Navigate loads url and waits for DOMContentLoaded. The returned status
	// is the main document's HTTP status, or 0 when it cannot be determined.
	Navigate(ctx context.Context, url string) (int, error)

	// Screenshot writes a full-page PNG to path.
	Screenshot(ctx context.Context, path string) error

	// Content returns the serialized DOM.
	Content(ctx context.Context) (string, error)

	// Scroll dispatches a mouse-wheel event of dy CSS pixels.
	Scroll(ctx context.Context, dy float64) error

	// Wait sleeps for d or until ctx is done.
	Wait(ctx context.Context, d time.Duration) error

	// Close releases the tab and its browser context. It is idempotent.
	Close() error
}

// Options configures a single session.
type Options struct {
	ViewportWidth  int
	ViewportHeight int
	Stealth        bool
	BlockAds       bool
	Headers        map[string]string
}

// Pool manages the shared browser process and hands out sessions.
// It is safe for concurrent use.
type Pool struct {
	cfg    config.BrowserConfig
	limits RecycleLimits

	// start launches a new process; replaced in tests.
	start func(ctx context.Context) (*process, error)

	// mu is never held while a process starts.
	mu        sync.Mutex
	proc      *process      // nil until launched or after retirement
	launching chan struct{} // closed when the in-flight start finishes
	closed    bool

	slots  chan struct{}
	active atomic.Int32
}

// process is one Chromium instance. Fields other than browser and health
// are guarded by Pool.mu.
type process struct {
	browser  *rod.Browser
	health   *processHealth
	sessions int
	retired  bool
}

// NewPool creates a Pool. The browser is not started until Start or the
// first Launch.
func NewPool(cfg config.BrowserConfig) *Pool {
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 1
	}
	p := &Pool{
		cfg: cfg,
		limits: RecycleLimits{
			MaxSessions: cfg.RecycleSessions,
			MaxAge:      cfg.RecycleAge,
		},
		slots: make(chan struct{}, cfg.MaxSessions),
	}
	p.start = p.startProcess
	return p
}

// Start launches the browser eagerly, bounded by ctx. A failure is not
// fatal: the next Launch tries again.
func (p *Pool) Start(ctx context.Context) error {
	proc, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	proc.sessions--
	p.mu.Unlock()
	return nil
}

// acquire returns the live process with its session count raised,
// starting one if needed. Only one start runs at a time; other callers
// wait for it or for ctx. Start failures are not cached.
func (p *Pool) acquire(ctx context.Context) (*process, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, models.NewAnalyzeError(models.ErrCodeBrowserLaunch, "browser pool is closed", nil)
		}
		if p.proc != nil {
			proc := p.proc
			proc.sessions++
			p.mu.Unlock()
			return proc, nil
		}
		if wait := p.launching; wait != nil {
			p.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, models.NewAnalyzeError(
					models.ErrCodeBrowserLaunch,
					"browser start did not finish in time",
					ctx.Err(),
				)
			}
		}
		done := make(chan struct{})
		p.launching = done
		p.mu.Unlock()

		proc, err := p.start(ctx)

		p.mu.Lock()
		p.launching = nil
		closed := p.closed
		if err == nil && !closed {
			p.proc = proc
			proc.sessions++
		}
		p.mu.Unlock()
		close(done)

		if err != nil {
			return nil, err
		}
		if closed {
			_ = proc.browser.Close()
			return nil, models.NewAnalyzeError(models.ErrCodeBrowserLaunch, "browser pool is closed", nil)
		}
		return proc, nil
	}
}

// startProcess launches and connects to a new Chromium. ctx bounds the
// binary download and the wait for the DevTools URL.
func (p *Pool) startProcess(ctx context.Context) (*process, error) {
	l := launcher.New().
		Context(ctx).
		Headless(p.cfg.Headless).
		NoSandbox(p.cfg.NoSandbox)

	if p.cfg.BrowserBin != "" {
		l = l.Bin(p.cfg.BrowserBin)
	}
	if p.cfg.DefaultProxy != "" {
		l = l.Proxy(p.cfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("hide-scrollbars"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		if l.PID() != 0 {
			l.Kill()
		}
		return nil, models.NewAnalyzeError(
			models.ErrCodeBrowserLaunch,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	// The connection outlives ctx, which only bounds startup.
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewAnalyzeError(
			models.ErrCodeBrowserLaunch,
			"failed to connect to browser",
			err,
		)
	}
	return &process{browser: b, health: newProcessHealth(time.Now())}, nil
}

// release records a finished session. A process that reached a recycle
// limit stops receiving sessions and is closed once its last one ends.
func (p *Pool) release(proc *process, failed bool) {
	proc.health.record(failed)

	p.mu.Lock()
	proc.sessions--
	if !proc.retired {
		if retire, reason := proc.health.shouldRetire(p.limits, time.Now()); retire {
			slog.Info("recycling browser process", "reason", reason)
			p.retireLocked(proc)
		}
	}
	closeNow := proc.retired && proc.sessions == 0
	p.mu.Unlock()

	if closeNow {
		if err := proc.browser.Close(); err != nil {
			slog.Debug("retired browser close failed", "error", err)
		}
	}
}

// discard retires a process that stopped answering so the next Launch
// starts a fresh one.
func (p *Pool) discard(proc *process) {
	p.mu.Lock()
	p.retireLocked(proc)
	p.mu.Unlock()
}

func (p *Pool) retireLocked(proc *process) {
	proc.retired = true
	if p.proc == proc {
		p.proc = nil
	}
}

// Launch opens a new session. It blocks until a session slot is free or ctx
// is done.
func (p *Pool) Launch(ctx context.Context, opts Options) (Session, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, models.NewAnalyzeError(
			models.ErrCodeBrowserLaunch,
			"no browser session became available",
			ctx.Err(),
		)
	}
	freeSlot := func() { <-p.slots }

	proc, err := p.acquire(ctx)
	if err != nil {
		freeSlot()
		return nil, err
	}

	inc, err := proc.browser.Incognito()
	if err != nil {
		p.discard(proc)
		p.release(proc, true)
		freeSlot()
		return nil, models.NewAnalyzeError(
			models.ErrCodeBrowserLaunch,
			"failed to create browser context",
			err,
		)
	}

	page, err := inc.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = inc.Close()
		p.release(proc, true)
		freeSlot()
		return nil, models.NewAnalyzeError(
			models.ErrCodeBrowserLaunch,
			"failed to open page",
			err,
		)
	}

	s := &rodSession{
		page:    page,
		context: inc,
	}
	s.release = func() {
		p.active.Add(-1)
		p.release(proc, s.failed.Load())
		freeSlot()
	}
	p.active.Add(1)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.ViewportWidth,
		Height:            opts.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		s.failed.Store(true)
		_ = s.Close()
		return nil, models.NewAnalyzeError(
			models.ErrCodeBrowserLaunch,
			"failed to set viewport",
			err,
		)
	}

	// Stealth, headers and the hijack router must be in place before Navigate.
	if opts.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}
	if len(opts.Headers) > 0 {
		if hdrErr := (proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(opts.Headers),
		}).Call(page); hdrErr != nil {
			slog.Warn("extra headers rejected", "error", hdrErr)
		}
	}
	s.router = setupHijack(page, opts.BlockAds)

	return s, nil
}

// Stats returns a snapshot of the pool's current state.
func (p *Pool) Stats() models.BrowserStats {
	p.mu.Lock()
	running := p.proc != nil
	p.mu.Unlock()
	return models.BrowserStats{
		Running:        running,
		MaxSessions:    cap(p.slots),
		ActiveSessions: int(p.active.Load()),
	}
}

// Close kills the browser process. Call this on graceful shutdown to
// prevent zombie Chrome processes.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.proc == nil {
		return
	}
	slog.Info("browser pool shutting down: closing browser")
	if err := p.proc.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	p.retireLocked(p.proc)
}
