// Package taskq implements the collection task queue backed by SQLite.
//
// One row is one unit of collection work for one video. The row's primary
// key is the natural task identity (kind + video), so enqueueing a task that
// is already pending or running is a no-op — concurrent sweeps and manual
// triggers can never put duplicate work in flight.
//
// Claimed rows become invisible for a configurable duration. A worker that
// finishes acks (deletes) the row; a worker that wants a retry nacks it with
// a delay, which doubles as the backoff mechanism. A worker that crashes
// simply lets the visibility timeout expire and the row reappears.
//
// Expected schema (created by EnsureTable):
//
//	CREATE TABLE IF NOT EXISTS collection_tasks (
//	    id          TEXT PRIMARY KEY,             -- kind:video_id
//	    kind        TEXT NOT NULL,
//	    video_id    TEXT NOT NULL,
//	    priority    INTEGER NOT NULL DEFAULT 0,   -- manual triggers claim first
//	    visible_at  INTEGER NOT NULL DEFAULT 0,   -- milliseconds since epoch
//	    created_at  INTEGER NOT NULL,             -- milliseconds since epoch
//	    attempts    INTEGER NOT NULL DEFAULT 0
//	);
package taskq

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"
)

// Kind identifies what a task does when claimed.
type Kind string

const (
	// KindMetrics fetches current counters and appends a snapshot.
	KindMetrics Kind = "metrics"
	// KindExistence checks whether the video still exists upstream.
	KindExistence Kind = "existence"
)

// Task is a row in the queue.
type Task struct {
	ID        string
	Kind      Kind
	VideoID   string
	Priority  int
	VisibleAt time.Time
	CreatedAt time.Time
	Attempts  int
}

// TaskID returns the natural key for a (kind, video) pair.
func TaskID(kind Kind, videoID string) string {
	return string(kind) + ":" + videoID
}

// Options configures queue behaviour.
type Options struct {
	// Visibility is how long a claimed task stays invisible. It must exceed
	// the worker's whole task deadline or a slow task gets double-claimed.
	// Default: 2m.
	Visibility time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Visibility <= 0 {
		o.Visibility = 2 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Q is the queue handle.
type Q struct {
	db   *sql.DB
	opts Options
}

// New creates a queue handle. Call EnsureTable once at startup.
func New(db *sql.DB, opts Options) *Q {
	opts.defaults()
	return &Q{db: db, opts: opts}
}

// EnsureTable creates the collection_tasks table and index if they don't exist.
func (q *Q) EnsureTable(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS collection_tasks (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			video_id    TEXT NOT NULL,
			priority    INTEGER NOT NULL DEFAULT 0,
			visible_at  INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			attempts    INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_ready ON collection_tasks (priority DESC, visible_at ASC);
		CREATE INDEX IF NOT EXISTS idx_tasks_video ON collection_tasks (video_id);
	`)
	return err
}

// Enqueue inserts an immediately-visible task unless one with the same
// identity is already queued or in flight. It reports whether a new row was
// actually inserted.
func (q *Q) Enqueue(ctx context.Context, kind Kind, videoID string, priority int) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collection_tasks (id, kind, video_id, priority, visible_at, created_at)
		VALUES (?,?,?,?,?,?)`,
		TaskID(kind, videoID), string(kind), videoID, priority, now, now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Claim atomically picks the highest-priority, oldest visible task, marks it
// invisible for the configured visibility duration, and returns it.
// Returns nil, nil if no task is ready.
func (q *Q) Claim(ctx context.Context) (*Task, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	row := q.db.QueryRowContext(ctx, `
		UPDATE collection_tasks
		SET visible_at = ?, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM collection_tasks
			WHERE visible_at <= ?
			ORDER BY priority DESC, visible_at ASC
			LIMIT 1
		)
		RETURNING id, kind, video_id, priority, visible_at, created_at, attempts`,
		hideUntil, now.UnixMilli(),
	)

	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// BatchClaim atomically claims up to n visible tasks in ready order.
// It returns an empty (non-nil) slice when nothing is ready.
func (q *Q) BatchClaim(ctx context.Context, n int) ([]*Task, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	rows, err := q.db.QueryContext(ctx, `
		UPDATE collection_tasks
		SET visible_at = ?, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM collection_tasks
			WHERE visible_at <= ?
			ORDER BY priority DESC, visible_at ASC
			LIMIT ?
		)
		RETURNING id, kind, video_id, priority, visible_at, created_at, attempts`,
		hideUntil, now.UnixMilli(), n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Ack deletes a finished task, successful or terminally failed.
func (q *Q) Ack(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM collection_tasks WHERE id = ?`, id,
	)
	return err
}

// NackAfter makes a claimed task visible again after delay. A delay of zero
// or less makes it immediately claimable. This is the retry/backoff path:
// the attempt counter set by Claim is preserved.
func (q *Q) NackAfter(ctx context.Context, id string, delay time.Duration) error {
	visibleAt := int64(0)
	if delay > 0 {
		visibleAt = time.Now().Add(delay).UnixMilli()
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE collection_tasks SET visible_at = ? WHERE id = ?`, visibleAt, id,
	)
	return err
}

// CancelVideo drops all queued tasks for a video. In-flight claims finish on
// their own; their ack/nack on a deleted row is a harmless no-op.
func (q *Q) CancelVideo(ctx context.Context, videoID string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM collection_tasks WHERE video_id = ?`, videoID,
	)
	return err
}

// Pending returns the total number of tasks (visible + claimed).
func (q *Q) Pending(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collection_tasks`,
	).Scan(&n)
	return n, err
}

// Purge deletes all tasks.
func (q *Q) Purge(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM collection_tasks`)
	return err
}

func scanTask(scan func(...any) error) (*Task, error) {
	var t Task
	var kind string
	var visAt, creAt int64
	if err := scan(&t.ID, &kind, &t.VideoID, &t.Priority, &visAt, &creAt, &t.Attempts); err != nil {
		return nil, err
	}
	t.Kind = Kind(kind)
	t.VisibleAt = time.UnixMilli(visAt)
	t.CreatedAt = time.UnixMilli(creAt)
	return &t, nil
}
