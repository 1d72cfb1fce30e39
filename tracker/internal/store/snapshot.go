package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Snapshot is one point-in-time reading of a video's counters. The history
// is append-only: values are stored exactly as observed, including decreases
// after takedowns or recounts.
type Snapshot struct {
	VideoID    string
	CapturedAt time.Time
	Views      int64
	Likes      int64
	Comments   int64
}

// AppendSnapshot records one reading. The capture time is assigned here if
// the caller left it zero. Returns ErrUnknownVideo for unregistered ids.
func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now()
	}
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM videos WHERE id = ?`, snap.VideoID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("append snapshot %s: %w", snap.VideoID, ErrUnknownVideo)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (video_id, captured_at, views, likes, comments)
		VALUES (?,?,?,?,?)`,
		snap.VideoID, snap.CapturedAt.UnixMilli(), snap.Views, snap.Likes, snap.Comments,
	)
	return err
}

// QuerySnapshots returns snapshots for a video within [from, to], oldest
// first. Zero bounds are open. limit <= 0 means no limit.
func (s *Store) QuerySnapshots(ctx context.Context, videoID string, from, to time.Time, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT video_id, captured_at, views, likes, comments
		FROM snapshots
		WHERE video_id = ? AND captured_at >= ? AND captured_at <= ?
		ORDER BY captured_at ASC
		LIMIT ?`,
		videoID, lowerMs(from), upperMs(to), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		var snap Snapshot
		var capAt int64
		if err := rows.Scan(&snap.VideoID, &capAt, &snap.Views, &snap.Likes, &snap.Comments); err != nil {
			return nil, err
		}
		snap.CapturedAt = time.UnixMilli(capAt)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// BucketSnapshots returns the last snapshot of each time bucket of the given
// width within [from, to], oldest bucket first. Buckets with no snapshots are
// simply absent.
func (s *Store) BucketSnapshots(ctx context.Context, videoID string, from, to time.Time, width time.Duration) ([]Snapshot, error) {
	if width <= 0 {
		return nil, fmt.Errorf("bucket width must be positive, got %v", width)
	}
	widthMs := width.Milliseconds()

	// Bare columns ride along with MAX(captured_at), so each group yields its
	// most recent row. SQLite guarantees this pairing.
	rows, err := s.db.QueryContext(ctx, `
		SELECT video_id, MAX(captured_at), views, likes, comments
		FROM snapshots
		WHERE video_id = ? AND captured_at >= ? AND captured_at <= ?
		GROUP BY captured_at / ?
		ORDER BY captured_at ASC`,
		videoID, lowerMs(from), upperMs(to), widthMs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		var snap Snapshot
		var capAt int64
		if err := rows.Scan(&snap.VideoID, &capAt, &snap.Views, &snap.Likes, &snap.Comments); err != nil {
			return nil, err
		}
		snap.CapturedAt = time.UnixMilli(capAt)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// LatestSnapshot returns the most recent snapshot for a video, or nil when
// none has been captured yet.
func (s *Store) LatestSnapshot(ctx context.Context, videoID string) (*Snapshot, error) {
	var snap Snapshot
	var capAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT video_id, captured_at, views, likes, comments
		FROM snapshots WHERE video_id = ?
		ORDER BY captured_at DESC LIMIT 1`,
		videoID,
	).Scan(&snap.VideoID, &capAt, &snap.Views, &snap.Likes, &snap.Comments)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.CapturedAt = time.UnixMilli(capAt)
	return &snap, nil
}

// CountSnapshots returns the number of stored snapshots for a video.
func (s *Store) CountSnapshots(ctx context.Context, videoID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE video_id = ?`, videoID,
	).Scan(&n)
	return n, err
}

// PruneSnapshots deletes snapshots captured before the cutoff. An empty
// videoID prunes across all videos. Returns the number of rows removed.
func (s *Store) PruneSnapshots(ctx context.Context, videoID string, before time.Time) (int64, error) {
	var err error
	var res sql.Result
	if videoID == "" {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM snapshots WHERE captured_at < ?`, before.UnixMilli())
	} else {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM snapshots WHERE video_id = ? AND captured_at < ?`,
			videoID, before.UnixMilli())
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func lowerMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func upperMs(t time.Time) int64 {
	if t.IsZero() {
		return int64(1) << 62
	}
	return t.UnixMilli()
}
