package tracker

import (
	"errors"

	"github.com/lbarthe/vidwatch/tracker/internal/store"
	"github.com/lbarthe/vidwatch/tracker/internal/trend"
)

// ErrNotFound is returned when a video id is not in the registry.
var ErrNotFound = store.ErrNotFound

// ErrUnknownVideo is returned when a snapshot references an unregistered video.
var ErrUnknownVideo = store.ErrUnknownVideo

// ErrInsufficientData is returned when an analysis window holds fewer than
// two snapshots.
var ErrInsufficientData = trend.ErrInsufficientData

// ErrInvalidInput is returned when request parameters fail validation.
var ErrInvalidInput = errors.New("tracker: invalid input")

// ErrUpstreamUnavailable is returned when the upstream cannot be reached for
// a synchronous operation. Registration and manual triggers surface it;
// background collection retries instead.
var ErrUpstreamUnavailable = errors.New("tracker: upstream unavailable")
