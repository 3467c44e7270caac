package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Version is the build version, overridden with
// -ldflags "-X github.com/use-agent/pagehealth/config.Version=...".
var Version = "0.1.0"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Analyzer  AnalyzerConfig
	Artifacts ArtifactsConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// ShutdownTimeout is how long in-flight runs get to finish on SIGTERM.
	ShutdownTimeout time.Duration // default: 90s
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxSessions caps concurrent runs (one incognito context each).
	MaxSessions int // default: 4

	// DefaultProxy is the proxy URL for all browser traffic.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// RecycleSessions restarts Chromium after this many sessions (0 = never).
	RecycleSessions int // default: 200

	// RecycleAge restarts Chromium once it is this old (0 = never).
	RecycleAge time.Duration // default: 50m
}

// AnalyzerConfig holds the fixed parameters of the load/scroll workflow.
// They are operator settings; requests cannot change them.
type AnalyzerConfig struct {
	// LaunchTimeout bounds the wait for a browser session (process start
	// or a free session slot).
	LaunchTimeout time.Duration // default: 60s

	// NavigationTimeout bounds the wait for DOMContentLoaded.
	NavigationTimeout time.Duration // default: 60s

	// CaptureTimeout bounds each screenshot, DOM read and scroll call.
	CaptureTimeout time.Duration // default: 30s

	// ScrollOffset is the vertical wheel delta in CSS pixels.
	ScrollOffset float64 // default: 800

	// ScrollSettle is the pause between scrolling and the second screenshot.
	ScrollSettle time.Duration // default: 500ms

	ViewportWidth  int // default: 1366
	ViewportHeight int // default: 900

	// BlankThreshold is the greyscale standard deviation below which the
	// initial screenshot is reported as a suspected blank page.
	BlankThreshold float64 // default: 2.0
}

// ArtifactsConfig controls where screenshots are written and mirrored.
type ArtifactsConfig struct {
	// DataDir is the root of the artifact tree; runs live in DataDir/runs/<run_id>.
	DataDir string // default: "/data"

	// S3 mirror, enabled when S3Endpoint is set.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3Bucket    string // default: "pagehealth-artifacts"
	S3UseSSL    bool   // default: false
}

// MirrorEnabled reports whether screenshots should be copied to object storage.
func (c ArtifactsConfig) MirrorEnabled() bool {
	return strings.TrimSpace(c.S3Endpoint) != ""
}

// RunTimeout is the longest a single run can take server-side: the
// launch and navigation bounds, four capture calls and the scroll pause.
// Clients waiting on POST /api/v1/run should allow at least this much.
func (c AnalyzerConfig) RunTimeout() time.Duration {
	return c.LaunchTimeout + c.NavigationTimeout + 4*c.CaptureTimeout + c.ScrollSettle
}

// Validate checks the mirror settings when the mirror is enabled.
func (c ArtifactsConfig) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data dir is required")
	}
	if !c.MirrorEnabled() {
		return nil
	}
	if strings.Contains(c.S3Endpoint, "://") {
		return fmt.Errorf("s3 endpoint must not include scheme: %q", c.S3Endpoint)
	}
	if strings.TrimSpace(c.S3AccessKey) == "" || strings.TrimSpace(c.S3SecretKey) == "" {
		return errors.New("s3 access key and secret key are required")
	}
	if strings.TrimSpace(c.S3Bucket) == "" {
		return errors.New("s3 bucket is required")
	}
	return nil
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 4
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            envOr("PAGEHEALTH_HOST", "0.0.0.0"),
			Port:            envIntOr("PAGEHEALTH_PORT", 8080),
			Mode:            envOr("PAGEHEALTH_MODE", "release"),
			ShutdownTimeout: envDurationOr("PAGEHEALTH_SHUTDOWN_TIMEOUT", 90*time.Second),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("PAGEHEALTH_HEADLESS", true),
			MaxSessions:  envIntOr("PAGEHEALTH_MAX_SESSIONS", 4),
			DefaultProxy: os.Getenv("PAGEHEALTH_PROXY"),
			NoSandbox:    envBoolOr("PAGEHEALTH_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("PAGEHEALTH_BROWSER_BIN"),

			RecycleSessions: envIntOr("PAGEHEALTH_BROWSER_RECYCLE_SESSIONS", 200),
			RecycleAge:      envDurationOr("PAGEHEALTH_BROWSER_RECYCLE_AGE", 50*time.Minute),
		},
		Analyzer: AnalyzerConfig{
			LaunchTimeout:     envDurationOr("PAGEHEALTH_LAUNCH_TIMEOUT", 60*time.Second),
			NavigationTimeout: envDurationOr("PAGEHEALTH_NAV_TIMEOUT", 60*time.Second),
			CaptureTimeout:    envDurationOr("PAGEHEALTH_CAPTURE_TIMEOUT", 30*time.Second),
			ScrollOffset:      envFloatOr("PAGEHEALTH_SCROLL_OFFSET", 800),
			ScrollSettle:      envDurationOr("PAGEHEALTH_SCROLL_SETTLE", 500*time.Millisecond),
			ViewportWidth:     envIntOr("PAGEHEALTH_VIEWPORT_WIDTH", 1366),
			ViewportHeight:    envIntOr("PAGEHEALTH_VIEWPORT_HEIGHT", 900),
			BlankThreshold:    envFloatOr("PAGEHEALTH_BLANK_THRESHOLD", 2.0),
		},
		Artifacts: ArtifactsConfig{
			DataDir:     envOr("DATA_DIR", "/data"),
			S3Endpoint:  os.Getenv("PAGEHEALTH_S3_ENDPOINT"),
			S3AccessKey: os.Getenv("PAGEHEALTH_S3_ACCESS_KEY"),
			S3SecretKey: os.Getenv("PAGEHEALTH_S3_SECRET_KEY"),
			S3Region:    envOr("PAGEHEALTH_S3_REGION", "us-east-1"),
			S3Bucket:    envOr("PAGEHEALTH_S3_BUCKET", "pagehealth-artifacts"),
			S3UseSSL:    envBoolOr("PAGEHEALTH_S3_USE_SSL", false),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PAGEHEALTH_AUTH_ENABLED", true),
			APIKeys: envSliceOr("PAGEHEALTH_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PAGEHEALTH_RATE_RPS", 1.0),
			Burst:             envIntOr("PAGEHEALTH_RATE_BURST", 4),
		},
		Log: LogConfig{
			Level:  envOr("PAGEHEALTH_LOG_LEVEL", "info"),
			Format: envOr("PAGEHEALTH_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
