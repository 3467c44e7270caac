package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/pagehealth/models"
	"github.com/ysmood/gson"
)

// rodSession is a Session backed by one page in its own incognito context.
type rodSession struct {
	page    *rod.Page
	context *rod.Browser
	router  *rod.HijackRouter
	release func()

	// failed is set when a browser-side call broke; it feeds process health.
	failed atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// httpErrorPage is the net error Chromium reports for a 4xx/5xx response
// with an empty body. The response was received; only the rendering failed.
const httpErrorPage = "net::ERR_HTTP_RESPONSE_CODE_FAILURE"

// How long to wait for the main document's response event once navigation
// has returned. Events are delivered asynchronously.
const (
	statusGrace      = 250 * time.Millisecond
	errorStatusGrace = 2 * time.Second
)

// Navigate registers the response listener and the DOMContentLoaded waiter
// before navigating so a fast page cannot fire either before we listen.
func (s *rodSession) Navigate(ctx context.Context, url string) (int, error) {
	p := s.page.Context(ctx)

	statusCh, stop := watchDocumentStatus(ctx, s.page)
	defer stop()

	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(url); err != nil {
		if isHTTPErrorPage(err) {
			return awaitStatus(ctx, statusCh, errorStatusGrace), nil
		}
		return 0, categorizeError(err, "navigation to target URL failed")
	}
	wait()
	if err := ctx.Err(); err != nil {
		return 0, categorizeError(err, "page did not reach DOMContentLoaded")
	}

	if status := awaitStatus(ctx, statusCh, statusGrace); status != 0 {
		return status, nil
	}
	return evalStatus(p), nil
}

// watchDocumentStatus reports the status of the first main-frame document
// response. stop ends the listener.
func watchDocumentStatus(ctx context.Context, page *rod.Page) (<-chan int, func()) {
	lctx, cancel := context.WithCancel(ctx)
	ch := make(chan int, 1)
	frame := page.FrameID

	wait := page.Context(lctx).EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
			return false
		}
		if frame != "" && e.FrameID != "" && e.FrameID != frame {
			return false
		}
		ch <- e.Response.Status
		return true
	})
	go wait()
	return ch, cancel
}

// awaitStatus returns the status from ch, or 0 if none arrives within grace.
func awaitStatus(ctx context.Context, ch <-chan int, grace time.Duration) int {
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case status := <-ch:
		return status
	case <-t.C:
		return 0
	case <-ctx.Done():
		return 0
	}
}

// isHTTPErrorPage reports whether a navigation error only means the server
// answered with an error status and no body.
func isHTTPErrorPage(err error) bool {
	var nav *rod.NavigationError
	return errors.As(err, &nav) && nav.Reason == httpErrorPage
}

// evalStatus reads the main document status from the Navigation Timing API
// (best-effort; 0 when unavailable).
func evalStatus(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

func (s *rodSession) Screenshot(ctx context.Context, path string) error {
	img, err := s.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return s.note(categorizeCapture(err, "screenshot capture failed"))
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return models.NewAnalyzeError(models.ErrCodeCapture, "failed to write screenshot", err)
	}
	return nil
}

func (s *rodSession) Content(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", s.note(categorizeCapture(err, "failed to read page HTML"))
	}
	return html, nil
}

func (s *rodSession) Scroll(ctx context.Context, dy float64) error {
	p := s.page.Context(ctx)
	if err := p.Mouse.Scroll(0, dy, 0); err != nil {
		return s.note(fmt.Errorf("scroll by %.0fpx failed: %w", dy, err))
	}
	return nil
}

func (s *rodSession) Wait(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the hijack router, closes the page and disposes the
// incognito context. The session slot is always released.
func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		defer s.release()
		if s.router != nil {
			_ = s.router.Stop()
		}
		pageErr := s.page.Close()
		ctxErr := s.context.Close()
		s.closeErr = errors.Join(pageErr, ctxErr)
	})
	return s.closeErr
}

// note marks the session failed when err points at the browser rather than
// the target page.
func (s *rodSession) note(err error) error {
	if browserFault(err) {
		s.failed.Store(true)
	}
	return err
}

// browserFault reports whether err is attributable to the browser. Navigation
// errors (DNS, refused connections, TLS) belong to the target.
func browserFault(err error) bool {
	if err == nil {
		return false
	}
	var ae *models.AnalyzeError
	if errors.As(err, &ae) {
		return ae.Code != models.ErrCodeNavigation
	}
	return true
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps navigation errors into typed AnalyzeErrors.
func categorizeError(err error, msg string) *models.AnalyzeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewAnalyzeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewAnalyzeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewAnalyzeError(models.ErrCodeNavigation, msg, err)
	}
}

// categorizeCapture is categorizeError for post-load operations.
func categorizeCapture(err error, msg string) *models.AnalyzeError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.NewAnalyzeError(models.ErrCodeTimeout, msg, err)
	}
	return models.NewAnalyzeError(models.ErrCodeCapture, msg, err)
}
