// Package tracker is the video performance tracking service: a registry of
// watched videos, an append-only snapshot history, a background collection
// loop and trend analysis over the history.
package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lbarthe/vidwatch/idgen"
	"github.com/lbarthe/vidwatch/taskq"
	"github.com/lbarthe/vidwatch/tracker/internal/scheduler"
	"github.com/lbarthe/vidwatch/tracker/internal/store"
	"github.com/lbarthe/vidwatch/tracker/internal/trend"
	"github.com/lbarthe/vidwatch/youtube"
)

// Upstream is the slice of the API client the service consumes.
type Upstream interface {
	FetchMetrics(ctx context.Context, ids []string) (map[string]youtube.Counters, map[string]*youtube.APIError, error)
	FetchDetails(ctx context.Context, ids []string) (map[string]youtube.VideoDetails, map[string]*youtube.APIError, error)
	CheckExists(ctx context.Context, id string) (bool, error)
}

// Service is the main tracker orchestrator.
type Service struct {
	store    *store.Store
	queue    *taskq.Q
	sched    *scheduler.Scheduler
	upstream Upstream
	config   *Config
	logger   *slog.Logger
	newID    idgen.Generator
	quota    *youtube.QuotaTracker

	cancel context.CancelFunc
	done   chan struct{}
}

// ServiceOption customizes Service construction.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithIDGenerator overrides report id generation.
func WithIDGenerator(g idgen.Generator) ServiceOption {
	return func(s *Service) { s.newID = g }
}

// WithQuota wires the quota tracker into Stats.
func WithQuota(q *youtube.QuotaTracker) ServiceOption {
	return func(s *Service) { s.quota = q }
}

// New creates a tracker Service on the given database and ensures its schema.
// Call Start to launch background collection.
func New(ctx context.Context, db *sql.DB, upstream Upstream, cfg *Config, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()

	svc := &Service{
		upstream: upstream,
		config:   cfg,
		logger:   slog.Default(),
		newID:    idgen.Default,
	}
	for _, opt := range opts {
		opt(svc)
	}

	svc.store = store.New(db)
	if err := svc.store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("tracker: ensure schema: %w", err)
	}
	svc.queue = taskq.New(db, taskq.Options{
		Visibility: cfg.Visibility,
		Logger:     svc.logger,
	})
	if err := svc.queue.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("tracker: ensure queue: %w", err)
	}
	svc.sched = scheduler.New(svc.store, svc.queue, upstream, scheduler.Config{
		Workers:          cfg.Workers,
		MetricsInterval:  cfg.MetricsInterval,
		LivenessInterval: cfg.LivenessInterval,
		MaxAttempts:      cfg.MaxAttempts,
		BackoffBase:      cfg.BackoffBase,
		BackoffMax:       cfg.BackoffMax,
		CallTimeout:      cfg.CallTimeout,
		Logger:           svc.logger,
	})
	return svc, nil
}

// Start launches the background collection loop. It returns immediately;
// ctx bounds the loop's lifetime alongside Close.
func (s *Service) Start(ctx context.Context) {
	if s.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.sched.Run(ctx)
	}()
}

// Close stops background collection and waits for in-flight tasks to drain.
func (s *Service) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
		s.done = nil
	}
	return nil
}

// RegisterVideo starts tracking a video. Metadata and the first snapshot come
// from the same upstream call, so a freshly registered video is immediately
// queryable. Re-registering refreshes metadata and reactivates the video.
func (s *Service) RegisterVideo(ctx context.Context, videoID string) (*VideoInfo, error) {
	if videoID == "" {
		return nil, fmt.Errorf("%w: video id required", ErrInvalidInput)
	}

	details, missing, err := s.upstream.FetchDetails(ctx, []string{videoID})
	if err != nil {
		return nil, upstreamErr(err)
	}
	if apiErr, ok := missing[videoID]; ok {
		return nil, fmt.Errorf("video %s: %s: %w", videoID, apiErr.Message, ErrNotFound)
	}
	d := details[videoID]

	isNew, err := s.store.RegisterVideo(ctx, store.Video{
		ID:           d.ID,
		Title:        d.Title,
		ChannelID:    d.ChannelID,
		ChannelTitle: d.ChannelTitle,
		PublishedAt:  d.PublishedAt,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.store.AppendSnapshot(ctx, store.Snapshot{
		VideoID:    d.ID,
		CapturedAt: now,
		Views:      d.Counters.Views,
		Likes:      d.Counters.Likes,
		Comments:   d.Counters.Comments,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.RecordCollected(ctx, d.ID, now); err != nil {
		return nil, err
	}

	s.logger.Info("tracker: video registered",
		"video", d.ID, "title", d.Title, "new", isNew)

	v, err := s.store.GetVideo(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	info := videoInfo(v)
	return &info, nil
}

// RemoveVideo stops tracking a video. With purgeHistory its snapshots are
// deleted too; otherwise they remain on disk, unreachable through queries.
func (s *Service) RemoveVideo(ctx context.Context, videoID string, purgeHistory bool) error {
	if videoID == "" {
		return fmt.Errorf("%w: video id required", ErrInvalidInput)
	}
	if err := s.store.RemoveVideo(ctx, videoID, purgeHistory); err != nil {
		return err
	}
	if err := s.queue.CancelVideo(ctx, videoID); err != nil {
		s.logger.Error("tracker: cancel tasks failed", "video", videoID, "err", err)
	}
	s.logger.Info("tracker: video removed", "video", videoID, "purged", purgeHistory)
	return nil
}

// CollectNow queues an immediate metric collection for one video, ahead of
// periodic work. If a collection is already queued the existing task handle
// is returned.
func (s *Service) CollectNow(ctx context.Context, videoID string) (*TaskHandle, error) {
	if _, err := s.store.GetVideo(ctx, videoID); err != nil {
		return nil, err
	}
	inserted, err := s.queue.Enqueue(ctx, taskq.KindMetrics, videoID, 1)
	if err != nil {
		return nil, err
	}
	return &TaskHandle{
		TaskID:   taskq.TaskID(taskq.KindMetrics, videoID),
		Enqueued: inserted,
	}, nil
}

// Trend computes the analysis report for one video over a window.
func (s *Service) Trend(ctx context.Context, q TrendQuery) (*TrendReport, error) {
	v, err := s.store.GetVideo(ctx, q.VideoID)
	if err != nil {
		return nil, err
	}

	unit := trend.Unit(q.Unit)
	if q.Unit == "" {
		unit = trend.UnitDay
	}
	width, err := trend.Width(unit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, fmt.Errorf("%w: window ends before it starts", ErrInvalidInput)
	}

	snaps, err := s.store.QuerySnapshots(ctx, q.VideoID, q.From, q.To, 0)
	if err != nil {
		return nil, err
	}
	growth, err := trend.ComputeGrowth(snaps)
	if err != nil {
		return nil, fmt.Errorf("video %s: %w", q.VideoID, err)
	}

	buckets, err := s.store.BucketSnapshots(ctx, q.VideoID, q.From, q.To, width)
	if err != nil {
		return nil, err
	}

	last := snaps[len(snaps)-1]
	return &TrendReport{
		ReportID:   s.newID(),
		Video:      videoInfo(v),
		Unit:       string(unit),
		Growth:     growth,
		Series:     trend.Series(buckets),
		Engagement: trend.EngagementRate(last.Views, last.Likes, last.Comments),
		Snapshots:  len(snaps),
	}, nil
}

// ListTracked returns tracked videos, optionally filtered by status.
func (s *Service) ListTracked(ctx context.Context, status string, limit, offset int) ([]VideoInfo, error) {
	switch store.Status(status) {
	case "", store.StatusActive, store.StatusUnavailable:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	videos, err := s.store.ListVideos(ctx, store.Status(status), limit, offset)
	if err != nil {
		return nil, err
	}
	infos := make([]VideoInfo, 0, len(videos))
	for _, v := range videos {
		info := videoInfo(v)
		if n, err := s.store.CountSnapshots(ctx, v.ID); err == nil {
			info.SnapshotCount = n
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// PruneSnapshots deletes snapshots captured before the cutoff. An empty
// videoID prunes across all videos.
func (s *Service) PruneSnapshots(ctx context.Context, videoID string, before time.Time) (int64, error) {
	if before.IsZero() {
		return 0, fmt.Errorf("%w: cutoff required", ErrInvalidInput)
	}
	if videoID != "" {
		if _, err := s.store.GetVideo(ctx, videoID); err != nil {
			return 0, err
		}
	}
	n, err := s.store.PruneSnapshots(ctx, videoID, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("tracker: snapshots pruned", "video", videoID, "removed", n, "before", before)
	}
	return n, nil
}

// Stats returns the operational summary.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.store.CountVideos(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		Active:       counts[store.StatusActive],
		Unavailable:  counts[store.StatusUnavailable],
		PendingTasks: pending,
		PausedUntil:  s.sched.PausedUntil(),
	}
	if s.quota != nil {
		st.QuotaSpent = s.quota.Spent()
	}
	return st, nil
}

func videoInfo(v *store.Video) VideoInfo {
	return VideoInfo{
		ID:              v.ID,
		Title:           v.Title,
		ChannelID:       v.ChannelID,
		ChannelTitle:    v.ChannelTitle,
		PublishedAt:     v.PublishedAt,
		Status:          string(v.Status),
		RegisteredAt:    v.RegisteredAt,
		LastCollectedAt: v.LastCollectedAt,
		LastCheckedAt:   v.LastCheckedAt,
	}
}

// upstreamErr maps a whole-call API failure to the service sentinel while
// keeping the classified detail in the chain.
func upstreamErr(err error) error {
	var apiErr *youtube.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s", ErrUpstreamUnavailable, apiErr.Message)
	}
	return fmt.Errorf("%w: %s", ErrUpstreamUnavailable, err)
}
