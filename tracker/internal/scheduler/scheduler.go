// Package scheduler drives periodic metric collection. It sweeps the
// registry into the task queue on fixed intervals and works the queue with a
// bounded worker pool.
//
// Failure policy: transient upstream errors retry with exponential backoff
// up to a fixed attempt budget, then the task is dropped with a log line.
// A metrics failure never changes a video's status; only an existence check
// may flip it. Quota exhaustion pauses all claiming until the reset time.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lbarthe/vidwatch/taskq"
	"github.com/lbarthe/vidwatch/tracker/internal/store"
	"github.com/lbarthe/vidwatch/youtube"
)

// Upstream is the slice of the API client the scheduler consumes.
type Upstream interface {
	FetchMetrics(ctx context.Context, ids []string) (map[string]youtube.Counters, map[string]*youtube.APIError, error)
	CheckExists(ctx context.Context, id string) (bool, error)
}

// Config tunes the collection loop.
type Config struct {
	// Workers bounds concurrent task execution. Default: 5.
	Workers int
	// MetricsInterval is the period between metric sweeps. Default: 1h.
	MetricsInterval time.Duration
	// LivenessInterval is the period between existence sweeps. Default: 24h.
	LivenessInterval time.Duration
	// MaxAttempts is the per-task attempt budget. Default: 3.
	MaxAttempts int
	// BackoffBase is the first retry delay; it doubles per attempt.
	// Default: 30s.
	BackoffBase time.Duration
	// BackoffMax caps the retry delay. Default: 10m.
	BackoffMax time.Duration
	// CallTimeout bounds one task's upstream work. Default: 1m.
	CallTimeout time.Duration
	// PollInterval is how often idle workers look for tasks. Default: 2s.
	PollInterval time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = time.Hour
	}
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = 24 * time.Hour
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 10 * time.Minute
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scheduler owns the sweep tickers and the worker pool.
type Scheduler struct {
	store    *store.Store
	queue    *taskq.Q
	upstream Upstream
	cfg      Config
	log      *slog.Logger

	mu          sync.Mutex
	pausedUntil time.Time
}

// New creates a scheduler.
func New(st *store.Store, queue *taskq.Q, upstream Upstream, cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		store:    st,
		queue:    queue,
		upstream: upstream,
		cfg:      cfg,
		log:      cfg.Logger,
	}
}

// Run sweeps and works the queue until ctx is canceled, then waits for
// in-flight tasks to drain.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler: starting",
		"workers", s.cfg.Workers,
		"metrics_interval", s.cfg.MetricsInterval,
		"liveness_interval", s.cfg.LivenessInterval)

	// Catch up immediately: anything registered while the process was down
	// gets collected without waiting a full interval.
	s.sweepMetrics(ctx)

	metricsTick := time.NewTicker(s.cfg.MetricsInterval)
	defer metricsTick.Stop()
	livenessTick := time.NewTicker(s.cfg.LivenessInterval)
	defer livenessTick.Stop()
	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()

	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-metricsTick.C:
			s.sweepMetrics(ctx)
		case <-livenessTick.C:
			s.sweepLiveness(ctx)
		case <-poll.C:
			if s.paused() {
				continue
			}
			free := s.cfg.Workers - len(sem)
			if free <= 0 {
				continue
			}
			tasks, err := s.queue.BatchClaim(ctx, free)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Error("scheduler: claim failed", "err", err)
				}
				continue
			}
			for _, task := range tasks {
				wg.Add(1)
				sem <- struct{}{}
				go func(task *taskq.Task) {
					defer wg.Done()
					defer func() { <-sem }()
					s.process(ctx, task)
				}(task)
			}
		}
	}

	wg.Wait()
	s.log.Info("scheduler: stopped")
	return ctx.Err()
}

// sweepMetrics enqueues a metrics task for every active video.
func (s *Scheduler) sweepMetrics(ctx context.Context) {
	videos, err := s.store.ListActive(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("scheduler: metrics sweep failed", "err", err)
		}
		return
	}
	enqueued := 0
	for _, v := range videos {
		inserted, err := s.queue.Enqueue(ctx, taskq.KindMetrics, v.ID, 0)
		if err != nil {
			s.log.Error("scheduler: enqueue failed", "video", v.ID, "err", err)
			continue
		}
		if inserted {
			enqueued++
		}
	}
	if enqueued > 0 {
		s.log.Info("scheduler: metrics sweep", "active", len(videos), "enqueued", enqueued)
	}
}

// sweepLiveness enqueues an existence check for every tracked video,
// unavailable ones included, so recovered videos come back on their own.
func (s *Scheduler) sweepLiveness(ctx context.Context) {
	videos, err := s.store.ListVideos(ctx, "", 0, 0)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("scheduler: liveness sweep failed", "err", err)
		}
		return
	}
	for _, v := range videos {
		if _, err := s.queue.Enqueue(ctx, taskq.KindExistence, v.ID, 0); err != nil {
			s.log.Error("scheduler: enqueue failed", "video", v.ID, "err", err)
		}
	}
	s.log.Info("scheduler: liveness sweep", "tracked", len(videos))
}

func (s *Scheduler) process(ctx context.Context, task *taskq.Task) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	var err error
	switch task.Kind {
	case taskq.KindMetrics:
		err = s.collectMetrics(callCtx, task)
	case taskq.KindExistence:
		err = s.checkExistence(callCtx, task)
	default:
		s.log.Error("scheduler: unknown task kind", "kind", task.Kind)
		err = nil
	}

	// Ack/nack with a fresh context so shutdown does not strand claimed rows
	// until the visibility timeout.
	qCtx, qCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer qCancel()

	if err == nil {
		if ackErr := s.queue.Ack(qCtx, task.ID); ackErr != nil {
			s.log.Error("scheduler: ack failed", "task", task.ID, "err", ackErr)
		}
		return
	}
	s.handleFailure(qCtx, task, err)
}

func (s *Scheduler) collectMetrics(ctx context.Context, task *taskq.Task) error {
	found, missing, err := s.upstream.FetchMetrics(ctx, []string{task.VideoID})
	if err != nil {
		return err
	}
	if apiErr, ok := missing[task.VideoID]; ok {
		return apiErr
	}
	counters, ok := found[task.VideoID]
	if !ok {
		return &youtube.APIError{Kind: youtube.KindNotFound, Message: "no counters returned"}
	}

	now := time.Now()
	err = s.store.AppendSnapshot(ctx, store.Snapshot{
		VideoID:    task.VideoID,
		CapturedAt: now,
		Views:      counters.Views,
		Likes:      counters.Likes,
		Comments:   counters.Comments,
	})
	if err != nil {
		// The video was removed while the task was in flight.
		if errors.Is(err, store.ErrUnknownVideo) {
			s.log.Info("scheduler: video gone before snapshot", "video", task.VideoID)
			return nil
		}
		return err
	}
	if err := s.store.RecordCollected(ctx, task.VideoID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	s.log.Debug("scheduler: snapshot appended", "video", task.VideoID, "views", counters.Views)
	return nil
}

func (s *Scheduler) checkExistence(ctx context.Context, task *taskq.Task) error {
	exists, err := s.upstream.CheckExists(ctx, task.VideoID)
	if err != nil {
		return err
	}
	status := store.StatusUnavailable
	if exists {
		status = store.StatusActive
	}
	if err := s.store.SetStatus(ctx, task.VideoID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if !exists {
		s.log.Warn("scheduler: video unavailable", "video", task.VideoID)
	}
	return nil
}

func (s *Scheduler) handleFailure(ctx context.Context, task *taskq.Task, err error) {
	var apiErr *youtube.APIError
	if !errors.As(err, &apiErr) {
		apiErr = &youtube.APIError{Kind: youtube.KindTransient, Message: err.Error()}
	}

	switch {
	case apiErr.Kind == youtube.KindQuotaExhausted:
		s.pause(apiErr.ResetAt)
		delay := time.Until(apiErr.ResetAt)
		if delay < 0 {
			delay = 0
		}
		if nackErr := s.queue.NackAfter(ctx, task.ID, delay); nackErr != nil {
			s.log.Error("scheduler: nack failed", "task", task.ID, "err", nackErr)
		}

	case apiErr.Terminal():
		// The status decision belongs to an existence check, never to a
		// metrics failure.
		s.log.Warn("scheduler: task failed terminally",
			"task", task.ID, "kind", apiErr.Kind, "err", apiErr.Message)
		if ackErr := s.queue.Ack(ctx, task.ID); ackErr != nil {
			s.log.Error("scheduler: ack failed", "task", task.ID, "err", ackErr)
		}
		if task.Kind == taskq.KindMetrics {
			if _, err := s.queue.Enqueue(ctx, taskq.KindExistence, task.VideoID, 0); err != nil {
				s.log.Error("scheduler: enqueue failed", "video", task.VideoID, "err", err)
			}
		}

	case task.Attempts >= s.cfg.MaxAttempts:
		s.log.Error("scheduler: task failed, attempts exhausted",
			"task", task.ID, "attempts", task.Attempts, "err", apiErr.Message)
		if ackErr := s.queue.Ack(ctx, task.ID); ackErr != nil {
			s.log.Error("scheduler: ack failed", "task", task.ID, "err", ackErr)
		}

	default:
		delay := s.backoff(task.Attempts)
		s.log.Warn("scheduler: task failed, retrying",
			"task", task.ID, "attempt", task.Attempts, "delay", delay, "err", apiErr.Message)
		if nackErr := s.queue.NackAfter(ctx, task.ID, delay); nackErr != nil {
			s.log.Error("scheduler: nack failed", "task", task.ID, "err", nackErr)
		}
	}
}

// backoff returns BackoffBase doubled per prior attempt, capped at BackoffMax.
func (s *Scheduler) backoff(attempts int) time.Duration {
	d := s.cfg.BackoffBase
	for i := 1; i < attempts && d < s.cfg.BackoffMax; i++ {
		d *= 2
	}
	if d > s.cfg.BackoffMax {
		d = s.cfg.BackoffMax
	}
	return d
}

func (s *Scheduler) pause(until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until.After(s.pausedUntil) {
		s.pausedUntil = until
		s.log.Warn("scheduler: collection paused", "until", until)
	}
}

func (s *Scheduler) paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Before(s.pausedUntil)
}

// PausedUntil reports the quota suspension deadline, zero when collecting.
func (s *Scheduler) PausedUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Now().Before(s.pausedUntil) {
		return s.pausedUntil
	}
	return time.Time{}
}
