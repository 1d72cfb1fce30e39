package youtube_test

import (
	"testing"
	"time"

	"github.com/lbarthe/vidwatch/youtube"
)

func TestQuotaTrackerStartsClear(t *testing.T) {
	q := youtube.NewQuotaTracker(0)
	if q.Exhausted() {
		t.Fatal("fresh tracker must not be exhausted")
	}
	if _, ok := q.ResumeAt(); ok {
		t.Fatal("fresh tracker must not have a resume time")
	}
}

func TestQuotaTrackerMarkExhausted(t *testing.T) {
	q := youtube.NewQuotaTracker(0)
	reset := time.Now().Add(time.Hour)
	q.MarkExhausted(reset)

	got, ok := q.ResumeAt()
	if !ok {
		t.Fatal("expected exhausted")
	}
	if !got.Equal(reset) {
		t.Fatalf("resume at %v, want %v", got, reset)
	}
}

func TestQuotaTrackerDefaultReset(t *testing.T) {
	q := youtube.NewQuotaTracker(0)
	q.MarkExhausted(time.Time{})

	got, ok := q.ResumeAt()
	if !ok {
		t.Fatal("expected exhausted")
	}
	if !got.After(time.Now()) {
		t.Fatalf("default reset %v must be in the future", got)
	}
	if until := time.Until(got); until > 25*time.Hour {
		t.Fatalf("default reset %v too far out", got)
	}
}

func TestQuotaTrackerRollover(t *testing.T) {
	q := youtube.NewQuotaTracker(0)
	q.Spend(40)
	q.MarkExhausted(time.Now().Add(20 * time.Millisecond))

	if !q.Exhausted() {
		t.Fatal("expected exhausted before reset")
	}

	time.Sleep(40 * time.Millisecond)

	if q.Exhausted() {
		t.Fatal("expected clear after reset time passed")
	}
	if got := q.Spent(); got != 0 {
		t.Fatalf("spent = %d after rollover, want 0", got)
	}
}

func TestQuotaTrackerLocalBudget(t *testing.T) {
	q := youtube.NewQuotaTracker(100)
	q.Spend(youtube.CostList)
	if q.Exhausted() {
		t.Fatal("one unit must not exhaust a budget of 100")
	}

	q.Spend(youtube.CostSearch)
	if !q.Exhausted() {
		t.Fatal("expected exhausted once spend reaches budget")
	}
	if got := q.Spent(); got != 101 {
		t.Fatalf("spent = %d, want 101", got)
	}
}

func TestQuotaTrackerKeepsLaterReset(t *testing.T) {
	q := youtube.NewQuotaTracker(0)
	later := time.Now().Add(2 * time.Hour)
	q.MarkExhausted(later)
	q.MarkExhausted(time.Now().Add(time.Hour))

	got, _ := q.ResumeAt()
	if !got.Equal(later) {
		t.Fatalf("resume at %v, a later reset must not be shortened", got)
	}
}
