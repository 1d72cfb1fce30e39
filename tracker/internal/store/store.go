// Package store persists tracked videos and their metric snapshots.
//
// Videos form the registry; snapshots are an append-only history keyed by
// capture time. Timestamps are stored as milliseconds since epoch.
package store

import (
	"database/sql"
	"errors"
)

var (
	// ErrNotFound means the video id is not in the registry.
	ErrNotFound = errors.New("video not found")
	// ErrUnknownVideo means a snapshot references an unregistered video.
	ErrUnknownVideo = errors.New("unknown video")
)

// Status is the lifecycle state of a tracked video.
type Status string

const (
	StatusActive      Status = "active"
	StatusUnavailable Status = "unavailable"
)

// Store wraps the database handle. All methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

// New creates a store. Call EnsureSchema once at startup.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for components sharing the database.
func (s *Store) DB() *sql.DB { return s.db }
