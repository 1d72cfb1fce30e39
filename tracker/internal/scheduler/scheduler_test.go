package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lbarthe/vidwatch/dbopen"
	"github.com/lbarthe/vidwatch/taskq"
	"github.com/lbarthe/vidwatch/tracker/internal/scheduler"
	"github.com/lbarthe/vidwatch/tracker/internal/store"
	"github.com/lbarthe/vidwatch/youtube"
)

type fakeUpstream struct {
	mu           sync.Mutex
	metricsCalls int
	existsCalls  int

	metrics func(ids []string) (map[string]youtube.Counters, map[string]*youtube.APIError, error)
	exists  func(id string) (bool, error)
}

func (f *fakeUpstream) FetchMetrics(ctx context.Context, ids []string) (map[string]youtube.Counters, map[string]*youtube.APIError, error) {
	f.mu.Lock()
	f.metricsCalls++
	f.mu.Unlock()
	if f.metrics == nil {
		return map[string]youtube.Counters{}, map[string]*youtube.APIError{}, nil
	}
	return f.metrics(ids)
}

func (f *fakeUpstream) CheckExists(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	f.existsCalls++
	f.mu.Unlock()
	if f.exists == nil {
		return true, nil
	}
	return f.exists(id)
}

func (f *fakeUpstream) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metricsCalls, f.existsCalls
}

type fixture struct {
	store    *store.Store
	queue    *taskq.Q
	upstream *fakeUpstream
	sched    *scheduler.Scheduler
}

func newFixture(t *testing.T, up *fakeUpstream, cfg scheduler.Config) *fixture {
	t.Helper()
	db := dbopen.OpenMemory(t)
	st := store.New(db)
	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	q := taskq.New(db, taskq.Options{Visibility: time.Minute})
	if err := q.EnsureTable(context.Background()); err != nil {
		t.Fatal(err)
	}

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.MetricsInterval == 0 {
		cfg.MetricsInterval = time.Hour
	}
	if cfg.LivenessInterval == 0 {
		cfg.LivenessInterval = time.Hour
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 10 * time.Millisecond
	}

	return &fixture{
		store:    st,
		queue:    q,
		upstream: up,
		sched:    scheduler.New(st, q, up, cfg),
	}
}

func (f *fixture) register(t *testing.T, id string) {
	t.Helper()
	if _, err := f.store.RegisterVideo(context.Background(), store.Video{ID: id, Title: id}); err != nil {
		t.Fatal(err)
	}
}

// run executes the scheduler for d and waits for it to drain.
func (f *fixture) run(t *testing.T, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.sched.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(d + 2*time.Second):
		t.Fatal("scheduler did not drain after cancel")
	}
}

func TestCollectsMetrics(t *testing.T) {
	up := &fakeUpstream{
		metrics: func(ids []string) (map[string]youtube.Counters, map[string]*youtube.APIError, error) {
			out := map[string]youtube.Counters{}
			for _, id := range ids {
				out[id] = youtube.Counters{Views: 1234, Likes: 5, Comments: 2}
			}
			return out, map[string]*youtube.APIError{}, nil
		},
	}
	f := newFixture(t, up, scheduler.Config{})
	f.register(t, "vid1")

	// The startup sweep enqueues the task; no manual enqueue needed.
	f.run(t, 300*time.Millisecond)

	snaps, err := f.store.QuerySnapshots(context.Background(), "vid1", time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	if snaps[0].Views != 1234 {
		t.Fatalf("views = %d", snaps[0].Views)
	}

	v, _ := f.store.GetVideo(context.Background(), "vid1")
	if v.LastCollectedAt.IsZero() {
		t.Fatal("last_collected_at not stamped")
	}

	pending, _ := f.queue.Pending(context.Background())
	if pending != 0 {
		t.Fatalf("pending = %d after success, want 0", pending)
	}
}

func TestPeriodicSweepEnqueuesActiveOnly(t *testing.T) {
	up := &fakeUpstream{}
	f := newFixture(t, up, scheduler.Config{MetricsInterval: 40 * time.Millisecond})
	f.register(t, "active1")
	f.register(t, "dead1")
	f.store.SetStatus(context.Background(), "dead1", store.StatusUnavailable)

	f.run(t, 200*time.Millisecond)

	// Only the active video was ever collected.
	snapsDead, _ := f.store.QuerySnapshots(context.Background(), "dead1", time.Time{}, time.Time{}, 0)
	if len(snapsDead) != 0 {
		t.Fatalf("unavailable video collected %d times", len(snapsDead))
	}
	snapsActive, _ := f.store.QuerySnapshots(context.Background(), "active1", time.Time{}, time.Time{}, 0)
	if len(snapsActive) == 0 {
		t.Fatal("active video never collected")
	}
}

func TestTransientRetryThenDrop(t *testing.T) {
	up := &fakeUpstream{
		metrics: func(ids []string) (map[string]youtube.Counters, map[string]*youtube.APIError, error) {
			return nil, nil, &youtube.APIError{Kind: youtube.KindTransient, StatusCode: 500, Message: "boom"}
		},
	}
	f := newFixture(t, up, scheduler.Config{MaxAttempts: 3})
	f.register(t, "vid1")

	f.run(t, 500*time.Millisecond)

	metricsCalls, _ := up.calls()
	if metricsCalls != 3 {
		t.Fatalf("metrics calls = %d, want exactly the attempt budget 3", metricsCalls)
	}

	// The task was dropped, and the video stays active: a metrics failure is
	// never a status verdict.
	pending, _ := f.queue.Pending(context.Background())
	if pending != 0 {
		t.Fatalf("pending = %d, want 0 after attempts exhausted", pending)
	}
	v, _ := f.store.GetVideo(context.Background(), "vid1")
	if v.Status != store.StatusActive {
		t.Fatalf("status = %s, metrics failures must not change it", v.Status)
	}
}

func TestQuotaExhaustionPausesClaiming(t *testing.T) {
	up := &fakeUpstream{
		metrics: func(ids []string) (map[string]youtube.Counters, map[string]*youtube.APIError, error) {
			return nil, nil, &youtube.APIError{
				Kind:    youtube.KindQuotaExhausted,
				Message: "quota",
				ResetAt: time.Now().Add(time.Hour),
			}
		},
	}
	f := newFixture(t, up, scheduler.Config{})
	f.register(t, "vid1")
	f.register(t, "vid2")

	f.run(t, 300*time.Millisecond)

	metricsCalls, _ := up.calls()
	if metricsCalls > 2 {
		t.Fatalf("metrics calls = %d, claiming must stop on quota exhaustion", metricsCalls)
	}
	if f.sched.PausedUntil().IsZero() {
		t.Fatal("scheduler should report the pause deadline")
	}

	// Tasks are parked, not dropped.
	pending, _ := f.queue.Pending(context.Background())
	if pending != 2 {
		t.Fatalf("pending = %d, want 2 parked tasks", pending)
	}
}

func TestExistenceCheckFlipsStatus(t *testing.T) {
	alive := false
	up := &fakeUpstream{
		exists: func(id string) (bool, error) { return alive, nil },
	}
	f := newFixture(t, up, scheduler.Config{})
	f.register(t, "vid1")

	ctx := context.Background()
	f.queue.Enqueue(ctx, taskq.KindExistence, "vid1", 0)
	f.run(t, 200*time.Millisecond)

	v, _ := f.store.GetVideo(ctx, "vid1")
	if v.Status != store.StatusUnavailable {
		t.Fatalf("status = %s, want unavailable", v.Status)
	}
	if v.LastCheckedAt.IsZero() {
		t.Fatal("last_checked_at not stamped")
	}

	// The video comes back: the next check restores it.
	alive = true
	f.queue.Enqueue(ctx, taskq.KindExistence, "vid1", 0)
	f.run(t, 200*time.Millisecond)

	v, _ = f.store.GetVideo(ctx, "vid1")
	if v.Status != store.StatusActive {
		t.Fatalf("status = %s, want active after recovery", v.Status)
	}
}

func TestMetricsNotFoundTriggersExistenceCheck(t *testing.T) {
	up := &fakeUpstream{
		metrics: func(ids []string) (map[string]youtube.Counters, map[string]*youtube.APIError, error) {
			missing := map[string]*youtube.APIError{}
			for _, id := range ids {
				missing[id] = &youtube.APIError{Kind: youtube.KindNotFound, Message: "gone"}
			}
			return map[string]youtube.Counters{}, missing, nil
		},
		exists: func(id string) (bool, error) { return false, nil },
	}
	f := newFixture(t, up, scheduler.Config{})
	f.register(t, "vid1")

	f.run(t, 400*time.Millisecond)

	_, existsCalls := up.calls()
	if existsCalls == 0 {
		t.Fatal("a not-found metrics result should trigger an existence check")
	}
	v, _ := f.store.GetVideo(context.Background(), "vid1")
	if v.Status != store.StatusUnavailable {
		t.Fatalf("status = %s, want unavailable", v.Status)
	}

	snaps, _ := f.store.QuerySnapshots(context.Background(), "vid1", time.Time{}, time.Time{}, 0)
	if len(snaps) != 0 {
		t.Fatalf("got %d snapshots for a gone video", len(snaps))
	}
}

func TestLivenessSweepCoversUnavailable(t *testing.T) {
	up := &fakeUpstream{
		exists: func(id string) (bool, error) { return true, nil },
	}
	f := newFixture(t, up, scheduler.Config{LivenessInterval: 40 * time.Millisecond})
	f.register(t, "vid1")
	f.store.SetStatus(context.Background(), "vid1", store.StatusUnavailable)

	f.run(t, 300*time.Millisecond)

	v, _ := f.store.GetVideo(context.Background(), "vid1")
	if v.Status != store.StatusActive {
		t.Fatalf("status = %s, liveness sweep should recover the video", v.Status)
	}
}

func TestWorkerPoolDrainsOnCancel(t *testing.T) {
	block := make(chan struct{})
	var once sync.Once
	up := &fakeUpstream{
		metrics: func(ids []string) (map[string]youtube.Counters, map[string]*youtube.APIError, error) {
			once.Do(func() { close(block) })
			out := map[string]youtube.Counters{}
			for _, id := range ids {
				out[id] = youtube.Counters{Views: 1}
			}
			return out, map[string]*youtube.APIError{}, nil
		},
	}
	f := newFixture(t, up, scheduler.Config{Workers: 2})
	for _, id := range []string{"a", "b", "c", "d"} {
		f.register(t, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.sched.Run(ctx)
	}()

	// Cancel while work is in flight; Run must still return.
	<-block
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
