package store

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS videos (
    id                TEXT PRIMARY KEY,
    title             TEXT NOT NULL DEFAULT '',
    channel_id        TEXT NOT NULL DEFAULT '',
    channel_title     TEXT NOT NULL DEFAULT '',
    published_at      INTEGER NOT NULL DEFAULT 0,
    status            TEXT NOT NULL DEFAULT 'active',
    registered_at     INTEGER NOT NULL,
    last_collected_at INTEGER NOT NULL DEFAULT 0,
    last_checked_at   INTEGER NOT NULL DEFAULT 0,
    updated_at        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    video_id    TEXT NOT NULL,
    captured_at INTEGER NOT NULL,
    views       INTEGER NOT NULL,
    likes       INTEGER NOT NULL,
    comments    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_video_time ON snapshots (video_id, captured_at);
CREATE INDEX IF NOT EXISTS idx_videos_status ON videos (status);
`

// EnsureSchema creates the tables and indexes if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
