package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/use-agent/pagehealth/config"
	"github.com/use-agent/pagehealth/models"
)

func TestNewPool_ClampsMaxSessions(t *testing.T) {
	p := NewPool(config.BrowserConfig{MaxSessions: 0})
	if got := p.Stats().MaxSessions; got != 1 {
		t.Errorf("MaxSessions = %d, want 1", got)
	}
	if p.Stats().Running {
		t.Error("browser should not be running before Start/Launch")
	}
}

func TestLaunch_NoFreeSlot(t *testing.T) {
	p := NewPool(config.BrowserConfig{MaxSessions: 1})
	p.slots <- struct{}{} // occupy the only slot

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Launch(ctx, Options{})
	var aerr *models.AnalyzeError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AnalyzeError, got %v", err)
	}
	if aerr.Code != models.ErrCodeBrowserLaunch {
		t.Errorf("code = %s, want %s", aerr.Code, models.ErrCodeBrowserLaunch)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped deadline error, got %v", err)
	}
}

func TestLaunch_MissingBinary(t *testing.T) {
	p := NewPool(config.BrowserConfig{
		Headless:    true,
		MaxSessions: 1,
		BrowserBin:  "/nonexistent/chromium-for-pagehealth-tests",
	})
	defer p.Close()

	_, err := p.Launch(context.Background(), Options{})
	var aerr *models.AnalyzeError
	if !errors.As(err, &aerr) || aerr.Code != models.ErrCodeBrowserLaunch {
		t.Fatalf("expected %s, got %v", models.ErrCodeBrowserLaunch, err)
	}
	// The slot must be returned after a failed launch.
	if got := len(p.slots); got != 0 {
		t.Errorf("slots in use after failed launch = %d, want 0", got)
	}
}

func TestCategorizeError(t *testing.T) {
	if e := categorizeError(context.DeadlineExceeded, "x"); e.Code != models.ErrCodeTimeout {
		t.Errorf("deadline: code = %s", e.Code)
	}
	if e := categorizeError(errors.New("net::ERR_NAME_NOT_RESOLVED"), "x"); e.Code != models.ErrCodeNavigation {
		t.Errorf("network error: code = %s", e.Code)
	}
	if e := categorizeCapture(errors.New("boom"), "x"); e.Code != models.ErrCodeCapture {
		t.Errorf("capture error: code = %s", e.Code)
	}
}

func TestRelease_RetiresUnhealthyProcess(t *testing.T) {
	p := NewPool(config.BrowserConfig{MaxSessions: 4})
	proc := &process{health: newProcessHealth(time.Now()), sessions: 4}
	p.proc = proc

	p.release(proc, true)
	p.release(proc, true)
	if proc.retired || p.proc != proc {
		t.Fatal("process retired too early")
	}
	p.release(proc, true)
	if !proc.retired {
		t.Fatal("process should retire after three failed sessions")
	}
	if p.proc != nil || p.Stats().Running {
		t.Error("retired process must not receive new sessions")
	}
	if proc.sessions != 1 {
		t.Errorf("sessions = %d, want 1", proc.sessions)
	}
}

func TestRelease_SessionLimit(t *testing.T) {
	p := NewPool(config.BrowserConfig{MaxSessions: 4, RecycleSessions: 2})
	proc := &process{health: newProcessHealth(time.Now()), sessions: 3}
	p.proc = proc

	p.release(proc, false)
	if proc.retired {
		t.Fatal("retired after one session")
	}
	p.release(proc, false)
	if !proc.retired || p.proc != nil {
		t.Error("process should retire after reaching the session limit")
	}
}

func TestIsHTTPErrorPage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"empty-body error status", &rod.NavigationError{Reason: "net::ERR_HTTP_RESPONSE_CODE_FAILURE"}, true},
		{"wrapped", fmt.Errorf("navigate: %w", &rod.NavigationError{Reason: "net::ERR_HTTP_RESPONSE_CODE_FAILURE"}), true},
		{"dns failure", &rod.NavigationError{Reason: "net::ERR_NAME_NOT_RESOLVED"}, false},
		{"other error", errors.New("net::ERR_HTTP_RESPONSE_CODE_FAILURE"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		if got := isHTTPErrorPage(tt.err); got != tt.want {
			t.Errorf("%s: isHTTPErrorPage = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAwaitStatus(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 500
	if got := awaitStatus(context.Background(), ch, time.Second); got != 500 {
		t.Errorf("buffered status = %d, want 500", got)
	}

	start := time.Now()
	if got := awaitStatus(context.Background(), make(chan int), 10*time.Millisecond); got != 0 {
		t.Errorf("no event = %d, want 0", got)
	}
	if time.Since(start) > time.Second {
		t.Error("grace period not honoured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := awaitStatus(ctx, make(chan int), time.Minute); got != 0 {
		t.Errorf("cancelled = %d, want 0", got)
	}
}

func TestAcquire_SingleStartWhileStatsStaysLive(t *testing.T) {
	p := NewPool(config.BrowserConfig{MaxSessions: 4})
	started := make(chan struct{})
	unblock := make(chan struct{})
	var calls atomic.Int32
	p.start = func(ctx context.Context) (*process, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-unblock
		return nil, errors.New("no chromium here")
	}

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := p.acquire(context.Background())
			errs <- err
		}()
	}
	<-started

	statsDone := make(chan struct{})
	go func() {
		_ = p.Stats()
		close(statsDone)
	}()
	select {
	case <-statsDone:
	case <-time.After(time.Second):
		t.Fatal("Stats blocked while the browser was starting")
	}

	close(unblock)
	for i := 0; i < 3; i++ {
		if err := <-errs; err == nil {
			t.Error("acquire succeeded without a browser")
		}
	}
	// Waiters retry after a failed start, but never concurrently with it.
	if n := calls.Load(); n < 1 || n > 3 {
		t.Errorf("start calls = %d", n)
	}
	if p.launching != nil {
		t.Error("launch marker left behind")
	}
}

func TestAcquire_WaiterHonoursContext(t *testing.T) {
	p := NewPool(config.BrowserConfig{MaxSessions: 2})
	started := make(chan struct{})
	unblock := make(chan struct{})
	defer close(unblock)
	p.start = func(ctx context.Context) (*process, error) {
		close(started)
		<-unblock
		return nil, errors.New("no chromium here")
	}
	go func() { _, _ = p.acquire(context.Background()) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Launch(ctx, Options{})
	var aerr *models.AnalyzeError
	if !errors.As(err, &aerr) || aerr.Code != models.ErrCodeBrowserLaunch {
		t.Fatalf("expected %s, got %v", models.ErrCodeBrowserLaunch, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped deadline error, got %v", err)
	}
	if got := len(p.slots); got != 0 {
		t.Errorf("slots in use after timed-out launch = %d, want 0", got)
	}
}

func TestStart_PassesContextToLauncher(t *testing.T) {
	p := NewPool(config.BrowserConfig{MaxSessions: 1})
	p.start = func(ctx context.Context) (*process, error) {
		<-ctx.Done()
		return nil, models.NewAnalyzeError(models.ErrCodeBrowserLaunch, "failed to launch browser", ctx.Err())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Start(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if p.Stats().Running {
		t.Error("failed start must not publish a process")
	}
}

func TestAcquire_ClosedPool(t *testing.T) {
	p := NewPool(config.BrowserConfig{MaxSessions: 1})
	p.Close()
	p.start = func(context.Context) (*process, error) {
		t.Error("closed pool started a browser")
		return nil, errors.New("unreachable")
	}
	if _, err := p.acquire(context.Background()); err == nil {
		t.Error("expected error from closed pool")
	}
}
