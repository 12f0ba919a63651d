package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultTick           = time.Minute
	defaultMaxErrorStreak = 5
)

// Clock supplies the current time to the runner.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Task is a periodic unit of work.
type Task struct {
	ID          string
	Name        string
	Description string
	Interval    time.Duration
	Enabled     bool
	Execute     func(ctx context.Context) error
}

// TaskStatus is the observable state of a task.
type TaskStatus struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	IntervalMins int        `json:"interval_minutes"`
	Enabled      bool       `json:"enabled"`
	Running      bool       `json:"running"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	SuccessCount int        `json:"success_count"`
	ErrorCount   int        `json:"error_count"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}

type taskState struct {
	task         Task
	addedAt      time.Time
	running      bool
	lastRun      *time.Time
	lastSuccess  *time.Time
	lastError    string
	successCount int
	errorCount   int
	// streakBase is the error surplus when the task was last enabled.
	streakBase int
}

func (s *taskState) due(now time.Time) bool {
	if !s.task.Enabled || s.running {
		return false
	}
	from := s.addedAt
	if s.lastRun != nil {
		from = *s.lastRun
	}
	return !now.Before(from.Add(s.task.Interval))
}

// ErrTaskNotFound is returned for unknown task ids.
var ErrTaskNotFound = eris.New("task not found")

// Runner fires periodic tasks from a single ticker. Ticks do not wait for
// earlier work; a task whose previous run is still in flight is skipped.
type Runner struct {
	clock     Clock
	tick      time.Duration
	maxStreak int

	mu    sync.Mutex
	tasks map[string]*taskState

	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerClock injects the time source.
func WithRunnerClock(c Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithTick sets how often due tasks are checked.
func WithTick(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.tick = d
		}
	}
}

// WithMaxErrorStreak sets how far errors may outnumber successes before a
// task is disabled.
func WithMaxErrorStreak(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxStreak = n
		}
	}
}

// NewRunner creates a Runner with no tasks.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		clock:     wallClock{},
		tick:      defaultTick,
		maxStreak: defaultMaxErrorStreak,
		tasks:     make(map[string]*taskState),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Add registers a task, replacing any task with the same id. Its first run
// is due one interval after it is added.
func (r *Runner) Add(t Task) error {
	if t.ID == "" || t.Execute == nil || t.Interval <= 0 {
		return eris.Errorf("scheduler: task %q needs an id, an interval and an execute func", t.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = &taskState{task: t, addedAt: r.clock.Now()}
	return nil
}

// Remove unregisters a task.
func (r *Runner) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return eris.Wrapf(ErrTaskNotFound, "scheduler: %s", id)
	}
	delete(r.tasks, id)
	return nil
}

// Enable turns a task on.
func (r *Runner) Enable(id string) error {
	return r.setEnabled(id, true)
}

// Disable turns a task off. A run in flight is not interrupted.
func (r *Runner) Disable(id string) error {
	return r.setEnabled(id, false)
}

func (r *Runner) setEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.tasks[id]
	if !ok {
		return eris.Wrapf(ErrTaskNotFound, "scheduler: %s", id)
	}
	s.task.Enabled = enabled
	if enabled {
		s.streakBase = s.errorCount - s.successCount
	}
	return nil
}

// Status returns every task sorted by id.
func (r *Runner) Status() []TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TaskStatus, 0, len(r.tasks))
	for _, s := range r.tasks {
		ts := TaskStatus{
			ID:           s.task.ID,
			Name:         s.task.Name,
			Description:  s.task.Description,
			IntervalMins: int(s.task.Interval / time.Minute),
			Enabled:      s.task.Enabled,
			Running:      s.running,
			LastRun:      s.lastRun,
			LastSuccess:  s.lastSuccess,
			LastError:    s.lastError,
			SuccessCount: s.successCount,
			ErrorCount:   s.errorCount,
		}
		if s.lastRun != nil {
			next := s.lastRun.Add(s.task.Interval)
			ts.NextRun = &next
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RunDue starts every enabled task whose interval has elapsed and returns
// the started ids. Tasks run in their own goroutines; Wait blocks until
// they finish.
func (r *Runner) RunDue(ctx context.Context) []string {
	now := r.clock.Now()
	var started []*taskState

	r.mu.Lock()
	for _, s := range r.tasks {
		if s.due(now) {
			s.running = true
			t := now
			s.lastRun = &t
			started = append(started, s)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(started))
	for _, s := range started {
		ids = append(ids, s.task.ID)
		r.wg.Add(1)
		go r.execute(ctx, s)
	}
	sort.Strings(ids)
	return ids
}

// Wait blocks until all started task runs have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) execute(ctx context.Context, s *taskState) {
	defer r.wg.Done()
	log := zap.L().With(zap.String("component", "scheduler"), zap.String("task", s.task.ID))
	start := r.clock.Now()

	err := runTask(ctx, s.task.Execute)

	r.mu.Lock()
	defer r.mu.Unlock()
	s.running = false
	if err != nil {
		s.errorCount++
		s.lastError = err.Error()
		log.Warn("task failed", zap.Error(err), zap.Int("error_count", s.errorCount))
		if s.errorCount-s.successCount-s.streakBase > r.maxStreak && s.task.Enabled {
			s.task.Enabled = false
			log.Error("task disabled after repeated failures",
				zap.Int("error_count", s.errorCount), zap.Int("success_count", s.successCount))
		}
		return
	}
	done := r.clock.Now()
	s.successCount++
	s.lastSuccess = &done
	s.lastError = ""
	log.Info("task completed", zap.Duration("elapsed", done.Sub(start)))
}

func runTask(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("task panicked: %s", fmt.Sprint(p))
		}
	}()
	return fn(ctx)
}

// Start begins ticking until ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	zap.L().Info("scheduler started", zap.Duration("tick", r.tick), zap.Int("tasks", len(r.Status())))
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ids := r.RunDue(ctx); len(ids) > 0 {
					zap.L().Debug("scheduler: started tasks", zap.Strings("tasks", ids))
				}
			}
		}
	}()
}

// Stop cancels running tasks and waits for them to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.wg.Wait()
	zap.L().Info("scheduler stopped")
}
