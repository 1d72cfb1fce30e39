// Package trend computes growth and engagement analytics from snapshot
// history. It is pure computation; callers bring the snapshots.
package trend

import (
	"errors"
	"fmt"
	"time"

	"github.com/lbarthe/vidwatch/tracker/internal/store"
)

// ErrInsufficientData means the window holds fewer than two snapshots, so no
// delta can be formed.
var ErrInsufficientData = errors.New("insufficient data")

// Unit is a bucket width name accepted by analysis requests.
type Unit string

const (
	UnitHour  Unit = "hour"
	UnitDay   Unit = "day"
	UnitWeek  Unit = "week"
	UnitMonth Unit = "month"
)

// Width maps a unit name to its bucket duration. A month is a fixed
// thirty days so that buckets stay uniform.
func Width(u Unit) (time.Duration, error) {
	switch u {
	case UnitHour:
		return time.Hour, nil
	case UnitDay:
		return 24 * time.Hour, nil
	case UnitWeek:
		return 7 * 24 * time.Hour, nil
	case UnitMonth:
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown unit %q", u)
	}
}

// Delta is the change in one counter over a window.
type Delta struct {
	First    int64   `json:"first"`
	Last     int64   `json:"last"`
	Absolute int64   `json:"absolute"`
	Percent  float64 `json:"percent"`
}

// Growth is the per-counter change between the first and last snapshot of a
// window.
type Growth struct {
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Views    Delta     `json:"views"`
	Likes    Delta     `json:"likes"`
	Comments Delta     `json:"comments"`
}

// Point is one bucketed reading in a series.
type Point struct {
	CapturedAt time.Time `json:"captured_at"`
	Views      int64     `json:"views"`
	Likes      int64     `json:"likes"`
	Comments   int64     `json:"comments"`
	Engagement float64   `json:"engagement"`
}

// ComputeGrowth derives per-counter deltas from the first and last snapshot.
// The percentage denominator is floored at one, so growth from zero reads as
// growth from one rather than a division error.
func ComputeGrowth(snaps []store.Snapshot) (*Growth, error) {
	if len(snaps) < 2 {
		return nil, ErrInsufficientData
	}
	first, last := snaps[0], snaps[len(snaps)-1]
	return &Growth{
		From:     first.CapturedAt,
		To:       last.CapturedAt,
		Views:    delta(first.Views, last.Views),
		Likes:    delta(first.Likes, last.Likes),
		Comments: delta(first.Comments, last.Comments),
	}, nil
}

func delta(first, last int64) Delta {
	abs := last - first
	return Delta{
		First:    first,
		Last:     last,
		Absolute: abs,
		Percent:  float64(abs) / float64(max64(first, 1)) * 100,
	}
}

// EngagementRate is (likes + comments) / views as a percentage, with the
// denominator floored at one.
func EngagementRate(views, likes, comments int64) float64 {
	return float64(likes+comments) / float64(max64(views, 1)) * 100
}

// Series maps bucketed snapshots to chart-ready points, computing the
// engagement rate of each.
func Series(snaps []store.Snapshot) []Point {
	points := make([]Point, 0, len(snaps))
	for _, snap := range snaps {
		points = append(points, Point{
			CapturedAt: snap.CapturedAt,
			Views:      snap.Views,
			Likes:      snap.Likes,
			Comments:   snap.Comments,
			Engagement: EngagementRate(snap.Views, snap.Likes, snap.Comments),
		})
	}
	return points
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
