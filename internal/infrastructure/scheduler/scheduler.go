// Package scheduler runs periodic maintenance jobs for the presence hub:
// re-syncing the Redis presence mirror and pruning old archived notifications.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next time the job should run after the given time.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler manages and executes scheduled jobs. Jobs run sequentially in
// registration order within a tick; a single slow job never overlaps itself.
type Scheduler struct {
	mu sync.RWMutex

	logger *slog.Logger
	jobs   map[string]*scheduledJob

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// scheduledJob pairs a job with its schedule and execution state.
type scheduledJob struct {
	job      Job
	schedule Schedule
	nextRun  time.Time
	lastRun  time.Time
	lastErr  error
	runCount int64
	inFlight bool
}

// SchedulerConfig contains configuration for the scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger
}

// Package-level errors.
var (
	ErrNilJob                  = fmt.Errorf("scheduler: job cannot be nil")
	ErrNilSchedule             = fmt.Errorf("scheduler: schedule cannot be nil")
	ErrJobAlreadyExists        = fmt.Errorf("scheduler: job already registered")
	ErrJobNotFound             = fmt.Errorf("scheduler: job not found")
	ErrSchedulerAlreadyRunning = fmt.Errorf("scheduler: already running")
	ErrSchedulerNotRunning     = fmt.Errorf("scheduler: not running")
)

// NewScheduler creates a new scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		logger: logger.With(slog.String("component", "scheduler")),
		jobs:   make(map[string]*scheduledJob),
	}
}

// Register adds a job with its schedule. The first run happens one full
// schedule interval after registration, not immediately.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, job.Name())
	}

	s.jobs[job.Name()] = &scheduledJob{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now()),
	}

	s.logger.Info("job registered",
		slog.String("job", job.Name()),
		slog.String("schedule", schedule.String()),
	)

	return nil
}

// Unregister removes a job from the scheduler.
func (s *Scheduler) Unregister(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobName]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	delete(s.jobs, jobName)
	return nil
}

// Start begins the scheduling loop. It returns immediately; jobs run in a
// background goroutine until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.runLoop()

	s.logger.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
	return nil
}

// Stop halts the scheduling loop and waits for any in-flight job to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether the scheduling loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunJobs()
		}
	}
}

func (s *Scheduler) checkAndRunJobs() {
	now := time.Now()

	s.mu.Lock()
	var due []*scheduledJob
	for _, sj := range s.jobs {
		if !sj.inFlight && !sj.nextRun.After(now) {
			sj.inFlight = true
			due = append(due, sj)
		}
	}
	s.mu.Unlock()

	for _, sj := range due {
		s.runJob(sj)
	}
}

func (s *Scheduler) runJob(sj *scheduledJob) {
	startedAt := time.Now()

	// Advance nextRun before executing so a slow run does not pile up
	// immediate re-runs behind it.
	s.mu.Lock()
	sj.nextRun = sj.schedule.Next(startedAt)
	s.mu.Unlock()

	err := sj.job.Run(s.ctx)
	completedAt := time.Now()

	s.mu.Lock()
	sj.lastRun = startedAt
	sj.lastErr = err
	sj.runCount++
	sj.inFlight = false
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			slog.String("job", sj.job.Name()),
			slog.Duration("duration", completedAt.Sub(startedAt)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Debug("job completed",
		slog.String("job", sj.job.Name()),
		slog.Duration("duration", completedAt.Sub(startedAt)),
	)
}

// RunNow executes a job immediately, outside its schedule. The regular
// schedule is unaffected.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.RLock()
	sj, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	startedAt := time.Now()
	err := sj.job.Run(ctx)
	completedAt := time.Now()

	result := &JobResult{
		JobName:     jobName,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Success:     err == nil,
		Error:       err,
	}

	s.mu.Lock()
	sj.lastRun = startedAt
	sj.lastErr = err
	sj.runCount++
	s.mu.Unlock()

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo is a snapshot of a registered job's state.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	NextRun     time.Time
	LastRun     time.Time
	LastError   error
	RunCount    int64
}

// ListJobs returns info for all registered jobs.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for _, sj := range s.jobs {
		infos = append(infos, JobInfo{
			Name:        sj.job.Name(),
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			NextRun:     sj.nextRun,
			LastRun:     sj.lastRun,
			LastError:   sj.lastErr,
			RunCount:    sj.runCount,
		})
	}

	return infos
}
