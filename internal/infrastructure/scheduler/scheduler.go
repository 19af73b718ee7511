// Package scheduler runs the engine's periodic jobs: the nightly streak
// recomputation, leaderboard rebuilds and ledger reconciliation sweeps.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// Job is a named unit of periodic work. Run receives a context that is
// cancelled when the scheduler stops; long sweeps must honor it.
type Job interface {
	Name() string
	Run(ctx context.Context) error
	Description() string
}

// Schedule decides when a job is next due.
type Schedule interface {
	// Next returns the first due time strictly after t.
	Next(t time.Time) time.Time

	// String describes the schedule for logs and status listings.
	String() string
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler polls registered jobs on a fixed tick and runs the due ones,
// each on its own goroutine. Stop waits for in-flight jobs to finish.
type Scheduler struct {
	mu sync.RWMutex

	logger       *slog.Logger
	timezone     *time.Location
	tickInterval time.Duration

	jobs      map[string]*entry
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

type entry struct {
	job      Job
	schedule Schedule
	lastRun  time.Time
	nextRun  time.Time
	runs     int64
	failures int64
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger

	// Timezone anchors schedule arithmetic; cron expressions like
	// "30 3 * * *" fire at that wall-clock time in this location.
	Timezone *time.Location

	// TickInterval is how often due jobs are checked for.
	TickInterval time.Duration
}

// DefaultSchedulerConfig checks for due jobs once a second in UTC.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:       slog.Default(),
		Timezone:     time.UTC,
		TickInterval: time.Second,
	}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}

	return &Scheduler{
		logger:       cfg.Logger,
		timezone:     cfg.Timezone,
		tickInterval: cfg.TickInterval,
		jobs:         make(map[string]*entry),
	}
}

// Register adds a job under its Name. Names must be unique.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	e := &entry{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now().In(s.timezone)),
	}
	s.jobs[name] = e

	s.logger.Info("job registered",
		"job", name,
		"description", job.Description(),
		"next_run", e.nextRun.Format(time.RFC3339),
	)
	return nil
}

// Start launches the polling loop. The given context bounds the scheduler's
// lifetime in addition to Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs_count", len(s.jobs))

	s.wg.Add(1)
	go s.loop()

	return nil
}

// Stop cancels the job context and waits for running jobs to finish.
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

	s.logger.Info("scheduler stopped", "uptime", time.Since(s.startedAt).String())
	return nil
}

// IsRunning reports whether the polling loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runDue()
		}
	}
}

func (s *Scheduler) runDue() {
	now := time.Now().In(s.timezone)

	s.mu.Lock()
	var due []*entry
	for _, e := range s.jobs {
		if !e.nextRun.IsZero() && now.After(e.nextRun) {
			// Advance nextRun before the job starts so a slow sweep
			// cannot be picked up again by the next tick.
			e.lastRun = now
			e.nextRun = e.schedule.Next(now)
			e.runs++
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.wg.Add(1)
		go s.run(e)
	}
}

func (s *Scheduler) run(e *entry) {
	defer s.wg.Done()

	name := e.job.Name()
	start := time.Now()
	s.logger.Info("job started", "job", name)

	err := e.job.Run(s.ctx)
	elapsed := time.Since(start)

	if err != nil {
		s.mu.Lock()
		e.failures++
		s.mu.Unlock()
		s.logger.Error("job failed", "job", name, "duration", elapsed.String(), "error", err)
		return
	}
	s.logger.Info("job completed", "job", name, "duration", elapsed.String())
}

// RunNow executes a job immediately, outside its schedule. The polling
// loop is unaffected; the job's next scheduled run stays as it was.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) error {
	s.mu.RLock()
	e, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	start := time.Now()
	s.logger.Info("manual job execution started", "job", jobName)

	err := e.job.Run(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	e.runs++
	if err != nil {
		e.failures++
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("manual job execution failed", "job", jobName, "duration", elapsed.String(), "error", err)
		return err
	}
	s.logger.Info("manual job execution completed", "job", jobName, "duration", elapsed.String())
	return nil
}

// JobStatus is one row of the scheduler's status listing.
type JobStatus struct {
	Name     string
	Schedule string
	LastRun  time.Time
	NextRun  time.Time
	Runs     int64
	Failures int64
}

// Jobs returns the status of every registered job.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for name, e := range s.jobs {
		out = append(out, JobStatus{
			Name:     name,
			Schedule: e.schedule.String(),
			LastRun:  e.lastRun,
			NextRun:  e.nextRun,
			Runs:     e.runs,
			Failures: e.failures,
		})
	}
	return out
}
