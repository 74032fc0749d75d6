package maintenance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/config"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

type entry struct {
	task     Task
	schedule string
	id       cron.EntryID
	status   TaskStatus
}

// Scheduler runs registered tasks on their cron schedules. A task never overlaps
// with itself; a tick that fires while the previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	tasks   map[string]*entry
	running bool
	logger  *zap.Logger
}

// NewScheduler creates an idle scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	logger = utils.OrNop(logger)
	cronLog := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		tasks:  make(map[string]*entry),
		logger: logger,
	}
}

// New builds a scheduler with the checkpoint and compaction tasks from cfg. It returns
// nil when maintenance is disabled.
func New(cfg config.MaintenanceConfig, store VectorStore, logger *zap.Logger) (*Scheduler, error) {
	if !cfg.EnabledOrDefault() {
		return nil, nil
	}
	s := NewScheduler(logger)
	if err := s.Register(NewCheckpointTask(store), cfg.CheckpointSchedule); err != nil {
		return nil, err
	}
	if err := s.Register(NewCompactTask(store, cfg.OrphanRatioThreshold), cfg.CompactionSchedule); err != nil {
		return nil, err
	}
	return s, nil
}

// Register schedules task. schedule is a standard five-field cron expression or a
// descriptor such as "@every 5m" or "@daily". An empty schedule registers the task for
// RunTask only.
func (s *Scheduler) Register(task Task, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := task.Name()
	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("task %s already registered", name)
	}
	e := &entry{
		task:     task,
		schedule: schedule,
		status:   TaskStatus{Name: name, Description: task.Description(), Schedule: schedule},
	}
	if schedule != "" {
		id, err := s.cron.AddFunc(schedule, func() { s.execute(context.Background(), e) })
		if err != nil {
			return fmt.Errorf("invalid schedule %q for task %s: %w", schedule, name, err)
		}
		e.id = id
	}
	s.tasks[name] = e
	s.logger.Debug("maintenance task registered", zap.String("task", name), zap.String("schedule", schedule))
	return nil
}

// Start begins running scheduled tasks in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("maintenance scheduler started", zap.Int("tasks", len(s.tasks)))
}

// Stop stops scheduling and waits for running tasks until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("maintenance scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("maintenance scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether Start was called without a later Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunTask executes the named task now and returns its result.
func (s *Scheduler) RunTask(ctx context.Context, name string) (TaskResult, error) {
	s.mu.Lock()
	e, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return TaskResult{}, fmt.Errorf("task %s not found", name)
	}
	return s.execute(ctx, e), nil
}

// Status returns every task's status ordered by name.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStatus, 0, len(s.tasks))
	for _, e := range s.tasks {
		st := e.status
		if e.id != 0 {
			st.NextRun = s.cron.Entry(e.id).Next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) execute(ctx context.Context, e *entry) TaskResult {
	name := e.task.Name()
	start := time.Now()
	res := e.task.Execute(ctx)
	res.Duration = time.Since(start)

	s.mu.Lock()
	e.status.LastRun = start
	e.status.LastResult = res
	e.status.Runs++
	s.mu.Unlock()

	switch {
	case !res.Success:
		s.logger.Warn("maintenance task failed",
			zap.String("task", name),
			zap.String("error", res.Error),
			zap.Duration("duration", res.Duration))
	case res.Skipped:
		s.logger.Debug("maintenance task skipped", zap.String("task", name), zap.String("reason", res.Message))
	default:
		s.logger.Info("maintenance task completed",
			zap.String("task", name),
			zap.String("message", res.Message),
			zap.Duration("duration", res.Duration))
	}
	return res
}
