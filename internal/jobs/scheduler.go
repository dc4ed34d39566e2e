package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SchedulerConfig tunes job intake.
type SchedulerConfig struct {
	MaxConcurrentJobs int
	PollInterval      time.Duration
}

// Scheduler claims pending jobs and dispatches one executor goroutine per
// job, up to MaxConcurrentJobs. All state lives on the Scheduler value.
type Scheduler struct {
	store    Store
	executor *Executor
	bus      *Bus
	logger   zerolog.Logger

	maxConcurrent int
	pollInterval  time.Duration

	mu            sync.Mutex
	running       bool
	stop          chan struct{}
	wake          chan struct{}
	active        map[int64]string
	cancelledJobs map[int64]struct{}

	wg sync.WaitGroup
}

func NewScheduler(store Store, executor *Executor, bus *Bus, cfg SchedulerConfig, logger zerolog.Logger) *Scheduler {
	maxConcurrent := cfg.MaxConcurrentJobs
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Scheduler{
		store:         store,
		executor:      executor,
		bus:           bus,
		logger:        logger.With().Str("component", "scheduler").Logger(),
		maxConcurrent: maxConcurrent,
		pollInterval:  pollInterval,
		wake:          make(chan struct{}, 1),
	}
}

// Start launches the intake loop. A second Start while running returns
// ErrSchedulerRunning.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil || s.store == nil || s.executor == nil {
		return fmt.Errorf("scheduler is not initialized")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerRunning
	}
	s.running = true
	s.stop = make(chan struct{})
	s.active = make(map[int64]string)
	s.cancelledJobs = make(map[int64]struct{})
	stop := s.stop
	s.mu.Unlock()

	s.bus.Publish(Event{Kind: EventSchedulerStarted})
	s.logger.Info().
		Int("max_concurrent_jobs", s.maxConcurrent).
		Dur("poll_interval", s.pollInterval).
		Msg("scheduler started")

	s.wg.Add(1)
	go s.loop(ctx, stop)
	return nil
}

// Stop halts intake and waits for active executors to finish their jobs.
// The passed context's cancellation, not Stop, is what interrupts running
// executors. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()

	s.bus.Publish(Event{Kind: EventSchedulerStopped})
	s.logger.Info().Msg("scheduler stopped")
}

// Notify wakes the intake loop ahead of the next poll tick. Safe to call from
// any goroutine; a pending wake coalesces.
func (s *Scheduler) Notify() {
	if s == nil {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Cancel cancels a job. Pending jobs transition to cancelled immediately;
// running jobs get their cooperative flag set and the executor finalizes at
// the next item boundary. Terminal jobs are rejected.
func (s *Scheduler) Cancel(ctx context.Context, jobUUID string) (*Job, error) {
	job, err := s.store.GetJobByUUID(ctx, jobUUID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case JobStatusPending:
		cancelled, err := s.store.CancelPendingJob(ctx, jobUUID)
		if err != nil {
			return nil, err
		}
		if !cancelled {
			// Lost the race with a claim; fall through to the flag.
			return s.flagRunning(ctx, jobUUID)
		}
		job.Status = JobStatusCancelled
		s.bus.Publish(Event{
			Kind:    EventJobCancelled,
			JobUUID: job.JobUUID,
			JobID:   job.JobID,
		})
		return job, nil

	case JobStatusRunning:
		s.markCancelled(job.JobID)
		return job, nil

	default:
		return nil, fmt.Errorf("job %s is already %s", jobUUID, job.Status)
	}
}

func (s *Scheduler) flagRunning(ctx context.Context, jobUUID string) (*Job, error) {
	job, err := s.store.GetJobByUUID(ctx, jobUUID)
	if err != nil {
		return nil, err
	}
	if job.Status != JobStatusRunning {
		return nil, fmt.Errorf("job %s is already %s", jobUUID, job.Status)
	}
	s.markCancelled(job.JobID)
	return job, nil
}

func (s *Scheduler) markCancelled(jobID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelledJobs == nil {
		s.cancelledJobs = make(map[int64]struct{})
	}
	s.cancelledJobs[jobID] = struct{}{}
}

func (s *Scheduler) isCancelled(jobID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancelledJobs[jobID]
	return ok
}

// ActiveJobs returns the UUIDs of jobs currently executing.
func (s *Scheduler) ActiveJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	uuids := make([]string, 0, len(s.active))
	for _, jobUUID := range s.active {
		uuids = append(uuids, jobUUID)
	}
	return uuids
}

func (s *Scheduler) loop(ctx context.Context, stop chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		s.fill(ctx)

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

// sweepCancelled drops cancel flags for jobs no executor owns. Cancel can
// race a running job into a terminal status after its flag was already
// cleaned up; without the sweep the re-added flag would live forever.
func (s *Scheduler) sweepCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jobID := range s.cancelledJobs {
		if _, ok := s.active[jobID]; !ok {
			delete(s.cancelledJobs, jobID)
		}
	}
}

// fill claims pending jobs until the concurrency budget is spent or the
// queue is empty. Claim errors are logged and retried on the next tick.
func (s *Scheduler) fill(ctx context.Context) {
	s.sweepCancelled()

	for {
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		slots := s.maxConcurrent - len(s.active)
		s.mu.Unlock()
		if slots <= 0 {
			return
		}

		job, err := s.store.ClaimNextJob(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("claim next job failed")
			return
		}
		if job == nil {
			return
		}

		s.mu.Lock()
		s.active[job.JobID] = job.JobUUID
		s.mu.Unlock()

		s.logger.Info().
			Str("job_uuid", job.JobUUID).
			Str("job_type", string(job.Type)).
			Int("total_items", job.TotalItems).
			Msg("job claimed")

		s.wg.Add(1)
		go s.runJob(ctx, job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *Job) {
	defer func() {
		s.mu.Lock()
		delete(s.active, job.JobID)
		delete(s.cancelledJobs, job.JobID)
		s.mu.Unlock()
		s.wg.Done()

		// A freed slot may unblock the next pending job.
		s.Notify()
	}()

	s.executor.Run(ctx, job, func() bool {
		return s.isCancelled(job.JobID)
	})
}
