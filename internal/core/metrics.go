package core

import (
	"sync/atomic"
	"time"
)

// Metrics counts Hub activity. Safe for concurrent use.
type Metrics struct {
	Submitted      int64
	Rejected       int64
	Applied        int64
	Failed         int64
	SessionsOpened int64
	SessionsClosed int64
	TotalApplyNs   int64
}

func (m *Metrics) IncSubmitted()      { atomic.AddInt64(&m.Submitted, 1) }
func (m *Metrics) IncRejected()       { atomic.AddInt64(&m.Rejected, 1) }
func (m *Metrics) IncFailed()         { atomic.AddInt64(&m.Failed, 1) }
func (m *Metrics) IncSessionsOpened() { atomic.AddInt64(&m.SessionsOpened, 1) }
func (m *Metrics) IncSessionsClosed() { atomic.AddInt64(&m.SessionsClosed, 1) }

func (m *Metrics) AddApply(d time.Duration) {
	atomic.AddInt64(&m.Applied, 1)
	atomic.AddInt64(&m.TotalApplyNs, int64(d))
}

// Snapshot returns a read-only copy suitable for JSON output.
func (m *Metrics) Snapshot() map[string]any {
	applied := atomic.LoadInt64(&m.Applied)
	total := atomic.LoadInt64(&m.TotalApplyNs)
	var avgUs float64
	if applied > 0 {
		avgUs = float64(total) / float64(applied) / 1e3
	}
	opened := atomic.LoadInt64(&m.SessionsOpened)
	closed := atomic.LoadInt64(&m.SessionsClosed)
	return map[string]any{
		"intents_submitted": atomic.LoadInt64(&m.Submitted),
		"intents_rejected":  atomic.LoadInt64(&m.Rejected),
		"intents_applied":   applied,
		"intents_failed":    atomic.LoadInt64(&m.Failed),
		"sessions_opened":   opened,
		"sessions_closed":   closed,
		"sessions_live":     opened - closed,
		"avg_apply_us":      avgUs,
	}
}
