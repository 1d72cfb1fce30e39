package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lbarthe/vidwatch/dbopen"
)

// Video is one registry row.
type Video struct {
	ID              string
	Title           string
	ChannelID       string
	ChannelTitle    string
	PublishedAt     time.Time
	Status          Status
	RegisteredAt    time.Time
	LastCollectedAt time.Time // zero until the first successful collection
	LastCheckedAt   time.Time // zero until the first existence check
	UpdatedAt       time.Time
}

const videoCols = `id, title, channel_id, channel_title, published_at, status,
	registered_at, last_collected_at, last_checked_at, updated_at`

// RegisterVideo inserts a video or refreshes the metadata of an existing one.
// Re-registering always resets status to active; the caller decides whether
// the video is worth watching again. It reports whether the row is new.
func (s *Store) RegisterVideo(ctx context.Context, v Video) (bool, error) {
	now := time.Now().UnixMilli()

	var existing int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM videos WHERE id = ?`, v.ID,
	).Scan(&existing)
	if err != nil {
		return false, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO videos (id, title, channel_id, channel_title, published_at, status, registered_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			channel_id = excluded.channel_id,
			channel_title = excluded.channel_title,
			published_at = excluded.published_at,
			status = 'active',
			updated_at = excluded.updated_at`,
		v.ID, v.Title, v.ChannelID, v.ChannelTitle, v.PublishedAt.UnixMilli(),
		string(StatusActive), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("register video: %w", err)
	}
	return existing == 0, nil
}

// GetVideo returns one video or ErrNotFound.
func (s *Store) GetVideo(ctx context.Context, id string) (*Video, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+videoCols+` FROM videos WHERE id = ?`, id,
	)
	v, err := scanVideo(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// ListActive returns the videos eligible for periodic metric collection,
// ordered by registration time.
func (s *Store) ListActive(ctx context.Context) ([]*Video, error) {
	return s.listWhere(ctx,
		`WHERE status = ? ORDER BY registered_at ASC`, string(StatusActive))
}

// ListVideos returns tracked videos, optionally filtered by status.
// limit <= 0 means no limit.
func (s *Store) ListVideos(ctx context.Context, status Status, limit, offset int) ([]*Video, error) {
	if limit <= 0 {
		limit = -1
	}
	if status == "" {
		return s.listWhere(ctx,
			`ORDER BY registered_at ASC LIMIT ? OFFSET ?`, limit, offset)
	}
	return s.listWhere(ctx,
		`WHERE status = ? ORDER BY registered_at ASC LIMIT ? OFFSET ?`,
		string(status), limit, offset)
}

func (s *Store) listWhere(ctx context.Context, tail string, args ...any) ([]*Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoCols+` FROM videos `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := []*Video{}
	for rows.Next() {
		v, err := scanVideo(rows.Scan)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// SetStatus updates a video's lifecycle state and its check timestamp.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET status = ?, last_checked_at = ?, updated_at = ? WHERE id = ?`,
		string(status), now, now, id,
	)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// RecordCollected stamps a successful metric collection.
func (s *Store) RecordCollected(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET last_collected_at = ?, updated_at = ? WHERE id = ?`,
		at.UnixMilli(), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// RemoveVideo deletes a video from the registry. With purgeHistory the
// snapshots go too; without it they stay on disk for later inspection,
// unreachable through the registry.
func (s *Store) RemoveVideo(ctx context.Context, id string, purgeHistory bool) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := affectedOrNotFound(res); err != nil {
			return err
		}
		if purgeHistory {
			_, err = tx.ExecContext(ctx, `DELETE FROM snapshots WHERE video_id = ?`, id)
		}
		return err
	})
}

// CountVideos returns the number of tracked videos per status.
func (s *Store) CountVideos(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM videos GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[Status]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[Status(st)] = n
	}
	return counts, rows.Err()
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanVideo(scan func(...any) error) (*Video, error) {
	var v Video
	var status string
	var pubAt, regAt, colAt, chkAt, updAt int64
	err := scan(&v.ID, &v.Title, &v.ChannelID, &v.ChannelTitle, &pubAt,
		&status, &regAt, &colAt, &chkAt, &updAt)
	if err != nil {
		return nil, err
	}
	v.Status = Status(status)
	v.PublishedAt = msTime(pubAt)
	v.RegisteredAt = msTime(regAt)
	v.LastCollectedAt = msTime(colAt)
	v.LastCheckedAt = msTime(chkAt)
	v.UpdatedAt = msTime(updAt)
	return &v, nil
}

// msTime maps the zero sentinel to a zero time.Time instead of the epoch.
func msTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
