// Package analyzer runs the page-health workflow: load, screenshot,
// heuristics, scroll, screenshot.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"sync"
	"time"

	"github.com/use-agent/pagehealth/artifacts"
	"github.com/use-agent/pagehealth/browser"
	"github.com/use-agent/pagehealth/config"
	"github.com/use-agent/pagehealth/imagestat"
	"github.com/use-agent/pagehealth/models"
)

// Summaries reported in Analysis.Summary.
const (
	SummaryCompleted     = "Basic load + scroll completed. Heuristics: HTTP status, error keywords, blank-page variance."
	SummaryNavigation    = "Failed to load page"
	SummaryBrowserLaunch = "Browser startup failed on this platform"
	SummaryException     = "Analyzer failed with an exception"
)

// Issue titles.
const (
	TitleBrowserUnavailable = "Headless browser unavailable on this host"
	TitleNavigation         = "Navigation failure"
	TitleScreenshot         = "Screenshot failed"
	TitleErrorMarker        = "Error marker detected"
	TitleBlankPage          = "Suspected blank page"
	TitleScroll             = "Scroll/screenshot failed"
	TitleException          = "Analyzer exception"
)

// Launcher opens browser sessions. *browser.Pool implements it.
type Launcher interface {
	Launch(ctx context.Context, opts browser.Options) (browser.Session, error)
}

// Uploader copies a run's artifacts somewhere else. *artifacts.Mirror implements it.
type Uploader interface {
	UploadRun(ctx context.Context, store *artifacts.Store, runID string, filenames []string) (int, error)
}

// Analyzer executes runs. It holds no per-run state and is safe for
// concurrent use; runs are isolated by their run_id directory.
type Analyzer struct {
	launcher Launcher
	store    *artifacts.Store
	cfg      config.AnalyzerConfig

	mirror   Uploader
	mirrorWG sync.WaitGroup
}

// New creates an Analyzer.
func New(launcher Launcher, store *artifacts.Store, cfg config.AnalyzerConfig) *Analyzer {
	return &Analyzer{launcher: launcher, store: store, cfg: cfg}
}

// SetMirror enables uploading screenshots after each run.
func (a *Analyzer) SetMirror(m Uploader) {
	a.mirror = m
}

// Wait blocks until pending mirror uploads finish.
func (a *Analyzer) Wait() {
	a.mirrorWG.Wait()
}

// Analyze runs the workflow for req and always returns a well-formed
// Analysis. Failures are reported as issues, never as errors.
//
// The caller's cancellation is detached: once started, each phase ends only
// on its own timeout. The browser session is released on every path.
func (a *Analyzer) Analyze(ctx context.Context, req *models.RunRequest) (result *models.Analysis) {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)
	an := models.NewAnalysis(req.RunID)
	logger := slog.With("run_id", req.RunID, "url", req.URL)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("analyzer panic", "panic", r)
			an.AddIssue(models.SeverityCritical, TitleException, fmt.Sprint(r))
			an.Summary = SummaryException
			result = an
		}
	}()

	// Screenshots of an earlier run with the same id must not be reported
	// or served as this run's.
	if err := a.store.Remove(req.RunID, artifacts.InitialScreenshot, artifacts.ScrolledScreenshot); err != nil {
		logger.Warn("stale artifacts not removed", "error", err)
	}

	if err := checkTarget(req.URL); err != nil {
		logger.Warn("unsupported target", "error", err)
		an.AddIssue(models.SeverityCritical, TitleNavigation, err.Error())
		an.Summary = SummaryNavigation
		return an
	}

	// ── 1. Launch ───────────────────────────────────────────────────
	launchCtx, cancelLaunch := context.WithTimeout(ctx, a.cfg.LaunchTimeout)
	sess, err := a.launcher.Launch(launchCtx, browser.Options{
		ViewportWidth:  a.cfg.ViewportWidth,
		ViewportHeight: a.cfg.ViewportHeight,
		Stealth:        req.Stealth,
		BlockAds:       req.BlockAds,
		Headers:        req.Headers,
	})
	cancelLaunch()
	if err != nil {
		logger.Error("browser launch failed", "error", err)
		an.AddIssue(models.SeverityCritical, TitleBrowserUnavailable, launchDetails(err))
		an.Summary = SummaryBrowserLaunch
		return an
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			logger.Warn("browser session close failed", "error", closeErr)
		}
	}()

	// ── 2. Navigate ─────────────────────────────────────────────────
	navCtx, cancelNav := context.WithTimeout(ctx, a.cfg.NavigationTimeout)
	status, err := sess.Navigate(navCtx, req.URL)
	cancelNav()
	if err != nil {
		logger.Warn("navigation failed", "error", err)
		an.AddIssue(models.SeverityCritical, TitleNavigation, err.Error())
		an.Summary = SummaryNavigation
		return an
	}

	// ── 3. Initial screenshot ───────────────────────────────────────
	initialPath, shotErr := a.capture(ctx, sess, req.RunID, artifacts.InitialScreenshot)
	content := a.content(ctx, sess, logger)
	if shotErr != nil {
		logger.Warn("initial screenshot failed", "error", shotErr)
		an.AddIssue(models.SeverityHigh, TitleScreenshot, "Initial screenshot error: "+shotErr.Error())
	} else {
		an.AddStep(models.Step{
			Name:        "Initial Load",
			Description: "Navigated to " + req.URL,
			Screenshot:  artifacts.URL(req.RunID, artifacts.InitialScreenshot),
			Notes:       pageNotes(content),
		})
	}

	// ── 4. Heuristics ───────────────────────────────────────────────
	if issue := CheckResponse(status, content); issue != nil {
		an.Issues = append(an.Issues, *issue)
	}
	if shotErr == nil && fileExists(initialPath) && imagestat.IsBlank(initialPath, a.cfg.BlankThreshold) {
		an.AddIssue(models.SeverityHigh, TitleBlankPage, "Initial screenshot variance is extremely low")
	}

	// ── 5. Scroll + second screenshot ───────────────────────────────
	if step, err := a.scroll(ctx, sess, req.RunID); err != nil {
		logger.Warn("scroll phase failed", "error", err)
		an.AddIssue(models.SeverityMedium, TitleScroll, err.Error())
	} else {
		an.AddStep(step)
	}

	an.Summary = SummaryCompleted
	a.mirrorRun(req.RunID, an.Screenshots)

	logger.Info("run completed",
		"status", status,
		"steps", len(an.Steps),
		"issues", len(an.Issues),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return an
}

// capture writes a full-page screenshot into the run directory.
func (a *Analyzer) capture(ctx context.Context, sess browser.Session, runID, filename string) (string, error) {
	p, err := a.store.Path(runID, filename)
	if err != nil {
		return "", err
	}
	shotCtx, cancel := context.WithTimeout(ctx, a.cfg.CaptureTimeout)
	defer cancel()
	return p, sess.Screenshot(shotCtx, p)
}

// content returns the DOM, or "" if it cannot be read.
func (a *Analyzer) content(ctx context.Context, sess browser.Session, logger *slog.Logger) string {
	cctx, cancel := context.WithTimeout(ctx, a.cfg.CaptureTimeout)
	defer cancel()
	html, err := sess.Content(cctx)
	if err != nil {
		logger.Debug("page content unavailable", "error", err)
		return ""
	}
	return html
}

func (a *Analyzer) scroll(ctx context.Context, sess browser.Session, runID string) (models.Step, error) {
	sctx, cancel := context.WithTimeout(ctx, a.cfg.CaptureTimeout)
	err := sess.Scroll(sctx, a.cfg.ScrollOffset)
	cancel()
	if err != nil {
		return models.Step{}, err
	}
	if err := sess.Wait(ctx, a.cfg.ScrollSettle); err != nil {
		return models.Step{}, err
	}
	if _, err := a.capture(ctx, sess, runID, artifacts.ScrolledScreenshot); err != nil {
		return models.Step{}, err
	}
	return models.Step{
		Name:        "Scroll",
		Description: "Scrolled page",
		Screenshot:  artifacts.URL(runID, artifacts.ScrolledScreenshot),
	}, nil
}

// mirrorRun uploads the screenshots this run produced in the background.
func (a *Analyzer) mirrorRun(runID string, refs []string) {
	if a.mirror == nil || len(refs) == 0 {
		return
	}
	filenames := make([]string, 0, len(refs))
	for _, ref := range refs {
		filenames = append(filenames, path.Base(ref))
	}
	a.mirrorWG.Add(1)
	go func() {
		defer a.mirrorWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		n, err := a.mirror.UploadRun(ctx, a.store, runID, filenames)
		if err != nil {
			slog.Warn("artifact mirror incomplete", "run_id", runID, "uploaded", n, "error", err)
			return
		}
		slog.Debug("artifacts mirrored", "run_id", runID, "uploaded", n)
	}()
}

// checkTarget rejects URLs the browser must not or cannot load: anything
// but absolute http(s), which keeps file:// and chrome:// out.
func checkTarget(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("unsupported URL %q: only absolute http(s) URLs can be loaded", raw)
	}
	return nil
}

// launchDetails explains a browser startup failure to the caller.
func launchDetails(err error) string {
	return "The analyzer could not start a headless Chromium session: " + err.Error() + ". " +
		"Install Chromium or point PAGEHEALTH_BROWSER_BIN at it, set PAGEHEALTH_NO_SANDBOX=true " +
		"when running as root or inside a container, or raise PAGEHEALTH_MAX_SESSIONS if all sessions are busy."
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
