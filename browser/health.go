package browser

import (
	"math"
	"sync"
	"time"
)

// Health scoring for the shared Chromium process.
//
//   - Successful session: errScore -= 0.5 (min 0)
//   - Failed session:     errScore += 1.0
//
// The process is recycled when any limit is reached: errScore >= 3,
// the session count, or the process age. A failed session is one whose
// capture or browser calls broke; pages that merely fail to load are
// the target's fault and count as success.
const maxErrScore = 3.0

// RecycleLimits bounds the lifetime of one browser process. Zero disables
// the corresponding limit.
type RecycleLimits struct {
	MaxSessions int
	MaxAge      time.Duration
}

type processHealth struct {
	mu       sync.Mutex
	errScore float64
	sessions int
	created  time.Time
}

func newProcessHealth(now time.Time) *processHealth {
	return &processHealth{created: now}
}

func (h *processHealth) record(failed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions++
	if failed {
		h.errScore += 1.0
		return
	}
	h.errScore = math.Max(0, h.errScore-0.5)
}

// shouldRetire reports whether the process has reached a limit, and which.
func (h *processHealth) shouldRetire(lim RecycleLimits, now time.Time) (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.errScore >= maxErrScore:
		return true, "errors"
	case lim.MaxSessions > 0 && h.sessions >= lim.MaxSessions:
		return true, "sessions"
	case lim.MaxAge > 0 && now.Sub(h.created) >= lim.MaxAge:
		return true, "age"
	}
	return false, ""
}
