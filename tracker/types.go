package tracker

import (
	"time"

	"github.com/lbarthe/vidwatch/tracker/internal/trend"
)

// VideoInfo is the public view of a tracked video.
type VideoInfo struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	ChannelID       string    `json:"channel_id"`
	ChannelTitle    string    `json:"channel_title"`
	PublishedAt     time.Time `json:"published_at"`
	Status          string    `json:"status"`
	RegisteredAt    time.Time `json:"registered_at"`
	LastCollectedAt time.Time `json:"last_collected_at,omitzero"`
	LastCheckedAt   time.Time `json:"last_checked_at,omitzero"`
	SnapshotCount   int       `json:"snapshot_count,omitempty"`
}

// TrendQuery selects the analysis window for one video.
type TrendQuery struct {
	VideoID string
	// From and To bound the window; zero values leave it open on that side.
	From time.Time
	To   time.Time
	// Unit selects the bucket width for the series: hour, day, week or month.
	// Empty means day.
	Unit string
}

// TrendReport is the assembled analysis for one video over a window.
type TrendReport struct {
	ReportID   string        `json:"report_id"`
	Video      VideoInfo     `json:"video"`
	Unit       string        `json:"unit"`
	Growth     *trend.Growth `json:"growth"`
	Series     []trend.Point `json:"series"`
	Engagement float64       `json:"engagement"` // rate at the latest reading
	Snapshots  int           `json:"snapshots"`  // readings in the window
}

// TaskHandle identifies a queued collection task.
type TaskHandle struct {
	TaskID string `json:"task_id"`
	// Enqueued is false when an identical task was already pending, in which
	// case the handle points at the existing one.
	Enqueued bool `json:"enqueued"`
}

// Stats is the operational summary exposed on the admin surface.
type Stats struct {
	Active       int       `json:"active"`
	Unavailable  int       `json:"unavailable"`
	PendingTasks int       `json:"pending_tasks"`
	QuotaSpent   int64     `json:"quota_spent"`
	PausedUntil  time.Time `json:"paused_until,omitzero"`
}
