package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ownlingo/ownlingo/internal/translator"
)

func newTestScheduler(store *fakeStore, resources *fakeResources, chain *stubChain, bus *Bus, maxConcurrent int) *Scheduler {
	exec := newTestExecutor(store, resources, newFakeCache(), chain, bus)
	return NewScheduler(store, exec, bus, SchedulerConfig{
		MaxConcurrentJobs: maxConcurrent,
		PollInterval:      10 * time.Millisecond,
	}, zerolog.Nop())
}

func waitForJobStatus(t *testing.T, store *fakeStore, jobID int64, want JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.jobByID(jobID).Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %d status = %s, want %s", jobID, store.jobByID(jobID).Status, want)
}

func TestSchedulerRunsPendingJobs(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	resources := newFakeResources(
		&Resource{ResourceID: "res-1", Locale: "en", Content: "Red shoes", ContentHash: []byte("h1")},
	)
	chain := &stubChain{}
	bus := NewBus(256)

	first := store.addJob(
		&Job{SourceLocale: "en", TargetLocales: []string{"de"}},
		[]*Item{{ResourceID: "res-1", TargetLocale: "de", MaxRetries: 1}},
	)
	second := store.addJob(
		&Job{SourceLocale: "en", TargetLocales: []string{"fr"}},
		[]*Item{{ResourceID: "res-1", TargetLocale: "fr", MaxRetries: 1}},
	)

	sched := newTestScheduler(store, resources, chain, bus, 1)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start scheduler: %v", err)
	}

	waitForJobStatus(t, store, first.JobID, JobStatusCompleted)
	waitForJobStatus(t, store, second.JobID, JobStatusCompleted)

	sched.Stop()

	events := drainEvents(bus)
	if countKind(events, EventSchedulerStarted) != 1 {
		t.Errorf("started events = %d, want 1", countKind(events, EventSchedulerStarted))
	}
	if countKind(events, EventSchedulerStopped) != 1 {
		t.Errorf("stopped events = %d, want 1", countKind(events, EventSchedulerStopped))
	}
	if countKind(events, EventJobCompleted) != 2 {
		t.Errorf("job:completed events = %d, want 2", countKind(events, EventJobCompleted))
	}
}

func TestSchedulerStartTwice(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sched := newTestScheduler(store, newFakeResources(), &stubChain{}, NewBus(16), 1)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer sched.Stop()

	if err := sched.Start(context.Background()); err != ErrSchedulerRunning {
		t.Fatalf("second start err = %v, want ErrSchedulerRunning", err)
	}
}

func TestSchedulerStopIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sched := newTestScheduler(store, newFakeResources(), &stubChain{}, NewBus(16), 1)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	sched.Stop()
	sched.Stop()
}

func TestSchedulerNotifySkipsPollWait(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	resources := newFakeResources(
		&Resource{ResourceID: "res-1", Locale: "en", Content: "Red shoes", ContentHash: []byte("h1")},
	)
	chain := &stubChain{}
	bus := NewBus(256)

	// Long poll interval so only Notify can make the new job run promptly.
	exec := newTestExecutor(store, resources, newFakeCache(), chain, bus)
	sched := NewScheduler(store, exec, bus, SchedulerConfig{
		MaxConcurrentJobs: 1,
		PollInterval:      time.Minute,
	}, zerolog.Nop())

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop()

	// Let the initial fill pass find an empty queue first.
	time.Sleep(20 * time.Millisecond)

	job := store.addJob(
		&Job{SourceLocale: "en", TargetLocales: []string{"de"}},
		[]*Item{{ResourceID: "res-1", TargetLocale: "de", MaxRetries: 1}},
	)
	sched.Notify()

	waitForJobStatus(t, store, job.JobID, JobStatusCompleted)
}

func TestSchedulerCancelPendingJob(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	bus := NewBus(64)
	sched := newTestScheduler(store, newFakeResources(), &stubChain{}, bus, 1)

	job := store.addJob(
		&Job{SourceLocale: "en", TargetLocales: []string{"de"}},
		[]*Item{{ResourceID: "res-1", TargetLocale: "de", MaxRetries: 1}},
	)

	got, err := sched.Cancel(context.Background(), job.JobUUID)
	if err != nil {
		t.Fatalf("cancel pending job: %v", err)
	}
	if got.Status != JobStatusCancelled {
		t.Errorf("returned status = %s, want cancelled", got.Status)
	}
	if store.jobByID(job.JobID).Status != JobStatusCancelled {
		t.Errorf("stored status = %s, want cancelled", store.jobByID(job.JobID).Status)
	}

	events := drainEvents(bus)
	if countKind(events, EventJobCancelled) != 1 {
		t.Errorf("job:cancelled events = %d, want 1", countKind(events, EventJobCancelled))
	}
}

func TestSchedulerCancelRunningJob(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	resources := newFakeResources(
		&Resource{ResourceID: "res-1", Locale: "en", Content: "Red shoes", ContentHash: []byte("h1")},
		&Resource{ResourceID: "res-2", Locale: "en", Content: "Blue hat", ContentHash: []byte("h2")},
	)
	bus := NewBus(256)

	started := make(chan struct{})
	release := make(chan struct{})
	chain := &stubChain{}
	chain.translate = func(call int, _ *translator.TranslationRequest) (*translator.TranslationResponse, error) {
		if call == 0 {
			close(started)
			<-release
		}
		return &translator.TranslationResponse{TranslatedText: "x", Provider: "stub"}, nil
	}

	sched := newTestScheduler(store, resources, chain, bus, 1)

	job := store.addJob(
		&Job{SourceLocale: "en", TargetLocales: []string{"de"}},
		[]*Item{
			{ResourceID: "res-1", TargetLocale: "de", MaxRetries: 1},
			{ResourceID: "res-2", TargetLocale: "de", MaxRetries: 1},
		},
	)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	<-started
	if _, err := sched.Cancel(context.Background(), job.JobUUID); err != nil {
		t.Fatalf("cancel running job: %v", err)
	}
	close(release)

	waitForJobStatus(t, store, job.JobID, JobStatusCancelled)
	sched.Stop()

	second := store.itemByID(job.JobID + 2)
	if second.Status != ItemStatusPending {
		t.Errorf("second item status = %s, want pending after cancellation", second.Status)
	}
}

func TestSchedulerSweepsStaleCancelFlags(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sched := newTestScheduler(store, newFakeResources(), &stubChain{}, NewBus(64), 1)

	// Running in the store, but no executor owns it: the same shape Cancel
	// sees when the job reaches a terminal status right after the lookup.
	job := store.addJob(
		&Job{Status: JobStatusRunning, SourceLocale: "en", TargetLocales: []string{"de"}},
		nil,
	)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop()

	if _, err := sched.Cancel(context.Background(), job.JobUUID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	sched.Notify()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sched.mu.Lock()
		flags := len(sched.cancelledJobs)
		sched.mu.Unlock()
		if flags == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("cancel flag for an unowned job was never swept")
}

func TestSchedulerCancelTerminalJobRejected(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sched := newTestScheduler(store, newFakeResources(), &stubChain{}, NewBus(16), 1)

	job := store.addJob(
		&Job{Status: JobStatusCompleted, SourceLocale: "en", TargetLocales: []string{"de"}},
		nil,
	)

	if _, err := sched.Cancel(context.Background(), job.JobUUID); err == nil {
		t.Fatal("expected error cancelling a terminal job")
	}
}

func TestSchedulerCancelUnknownJob(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sched := newTestScheduler(store, newFakeResources(), &stubChain{}, NewBus(16), 1)

	if _, err := sched.Cancel(context.Background(), "00000000-0000-0000-0000-000000000000"); err != ErrJobNotFound {
		t.Fatalf("cancel unknown job err = %v, want ErrJobNotFound", err)
	}
}
