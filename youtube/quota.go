package youtube

import (
	"sync"
	"time"
)

// Unit costs per API method. The read endpoints cost one unit; search is a
// hundred times more expensive, which is why the collector never uses it.
const (
	CostList   = 1
	CostSearch = 100
)

// QuotaTracker owns the shared daily-quota state. Every client call records
// its spend here, and exhaustion (observed from a 403 or inferred from the
// budget) is published so the scheduler can suspend polling instead of
// busy-retrying. All access is internally synchronized.
type QuotaTracker struct {
	mu      sync.Mutex
	budget  int64 // 0 = no local budget, trust upstream 403s only
	spent   int64
	resetAt time.Time // zero = not exhausted
	now     func() time.Time
	loc     *time.Location
}

// NewQuotaTracker creates a tracker. budget is the local daily allocation in
// units; pass 0 to rely solely on upstream quota errors.
func NewQuotaTracker(budget int64) *QuotaTracker {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		// The upstream resets at midnight Pacific; standard offset is close
		// enough when tzdata is unavailable.
		loc = time.FixedZone("PT", -8*3600)
	}
	return &QuotaTracker{budget: budget, now: time.Now, loc: loc}
}

// Spend records units consumed by one call. When a local budget is set and
// it is now spent, the tracker marks itself exhausted until the next reset.
func (t *QuotaTracker) Spend(units int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	t.spent += units
	if t.budget > 0 && t.spent >= t.budget && t.resetAt.IsZero() {
		t.resetAt = t.nextResetLocked()
	}
}

// MarkExhausted records an upstream quota rejection. A zero resetAt means the
// upstream gave none; the next midnight Pacific is used.
func (t *QuotaTracker) MarkExhausted(resetAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if resetAt.IsZero() {
		resetAt = t.nextResetLocked()
	}
	if t.resetAt.IsZero() || resetAt.After(t.resetAt) {
		t.resetAt = resetAt
	}
}

// ResumeAt returns the reset time and true while the quota is exhausted.
func (t *QuotaTracker) ResumeAt() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	if t.resetAt.IsZero() {
		return time.Time{}, false
	}
	return t.resetAt, true
}

// Exhausted reports whether calls should be suspended right now.
func (t *QuotaTracker) Exhausted() bool {
	_, ok := t.ResumeAt()
	return ok
}

// Spent returns units recorded since the last reset.
func (t *QuotaTracker) Spent() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	return t.spent
}

func (t *QuotaTracker) rolloverLocked() {
	if !t.resetAt.IsZero() && !t.now().Before(t.resetAt) {
		t.resetAt = time.Time{}
		t.spent = 0
	}
}

func (t *QuotaTracker) nextResetLocked() time.Time {
	n := t.now().In(t.loc)
	midnight := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, t.loc)
	return midnight.AddDate(0, 0, 1)
}
