package trend_test

import (
	"errors"
	"testing"
	"time"

	"github.com/lbarthe/vidwatch/tracker/internal/store"
	"github.com/lbarthe/vidwatch/tracker/internal/trend"
)

func snapsAt(base time.Time, views ...int64) []store.Snapshot {
	snaps := make([]store.Snapshot, len(views))
	for i, v := range views {
		snaps[i] = store.Snapshot{
			VideoID:    "vid1",
			CapturedAt: base.Add(time.Duration(i) * time.Hour),
			Views:      v,
		}
	}
	return snaps
}

func TestComputeGrowth(t *testing.T) {
	base := time.Now()
	snaps := []store.Snapshot{
		{CapturedAt: base, Views: 1000, Likes: 40, Comments: 5},
		{CapturedAt: base.Add(time.Hour), Views: 1100, Likes: 44, Comments: 6},
		{CapturedAt: base.Add(2 * time.Hour), Views: 1500, Likes: 60, Comments: 10},
	}

	g, err := trend.ComputeGrowth(snaps)
	if err != nil {
		t.Fatal(err)
	}
	if g.Views.Absolute != 500 {
		t.Fatalf("views delta = %d, want 500", g.Views.Absolute)
	}
	if g.Views.Percent != 50 {
		t.Fatalf("views percent = %v, want 50", g.Views.Percent)
	}
	if g.Likes.Absolute != 20 || g.Comments.Absolute != 5 {
		t.Fatalf("likes %d comments %d", g.Likes.Absolute, g.Comments.Absolute)
	}
	if !g.From.Equal(base) || !g.To.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("window %v..%v", g.From, g.To)
	}
}

func TestComputeGrowthFromZero(t *testing.T) {
	// A first reading of zero uses a denominator of one.
	g, err := trend.ComputeGrowth(snapsAt(time.Now(), 0, 100, 150))
	if err != nil {
		t.Fatal(err)
	}
	if g.Views.Absolute != 150 {
		t.Fatalf("delta = %d, want 150", g.Views.Absolute)
	}
	if g.Views.Percent != 15000.0 {
		t.Fatalf("percent = %v, want 15000", g.Views.Percent)
	}
}

func TestComputeGrowthNegative(t *testing.T) {
	// Counter decreases produce negative deltas, not errors.
	g, err := trend.ComputeGrowth(snapsAt(time.Now(), 200, 150))
	if err != nil {
		t.Fatal(err)
	}
	if g.Views.Absolute != -50 {
		t.Fatalf("delta = %d, want -50", g.Views.Absolute)
	}
	if g.Views.Percent != -25 {
		t.Fatalf("percent = %v, want -25", g.Views.Percent)
	}
}

func TestComputeGrowthInsufficient(t *testing.T) {
	for _, snaps := range [][]store.Snapshot{nil, snapsAt(time.Now(), 10)} {
		_, err := trend.ComputeGrowth(snaps)
		if !errors.Is(err, trend.ErrInsufficientData) {
			t.Fatalf("err = %v, want ErrInsufficientData", err)
		}
	}
}

func TestEngagementRate(t *testing.T) {
	cases := []struct {
		views, likes, comments int64
		want                   float64
	}{
		{1000, 40, 10, 5},
		{0, 3, 2, 500}, // zero views uses denominator one
		{100, 0, 0, 0},
	}
	for _, tc := range cases {
		got := trend.EngagementRate(tc.views, tc.likes, tc.comments)
		if got != tc.want {
			t.Fatalf("EngagementRate(%d,%d,%d) = %v, want %v",
				tc.views, tc.likes, tc.comments, got, tc.want)
		}
	}
}

func TestWidth(t *testing.T) {
	cases := map[trend.Unit]time.Duration{
		trend.UnitHour:  time.Hour,
		trend.UnitDay:   24 * time.Hour,
		trend.UnitWeek:  7 * 24 * time.Hour,
		trend.UnitMonth: 30 * 24 * time.Hour,
	}
	for unit, want := range cases {
		got, err := trend.Width(unit)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("Width(%s) = %v, want %v", unit, got, want)
		}
	}

	if _, err := trend.Width("fortnight"); err == nil {
		t.Fatal("expected error for unknown unit")
	}
}

func TestSeries(t *testing.T) {
	base := time.Now()
	points := trend.Series([]store.Snapshot{
		{CapturedAt: base, Views: 1000, Likes: 40, Comments: 10},
		{CapturedAt: base.Add(time.Hour), Views: 2000, Likes: 50, Comments: 50},
	})
	if len(points) != 2 {
		t.Fatalf("got %d points", len(points))
	}
	if points[0].Engagement != 5 {
		t.Fatalf("engagement = %v, want 5", points[0].Engagement)
	}
	if points[1].Engagement != 5 {
		t.Fatalf("engagement = %v, want 5", points[1].Engagement)
	}

	if got := trend.Series(nil); got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %v", got)
	}
}
