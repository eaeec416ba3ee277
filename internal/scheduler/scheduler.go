// Package scheduler runs named background tasks on fixed intervals.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one periodic job. A failing or panicking run is logged and the task
// keeps its schedule.
type Task struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Fn         func(ctx context.Context) error
}

type Scheduler struct {
	mu       sync.Mutex
	tasks    []Task
	logger   *zap.Logger
	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{logger: logger}
}

// Registers a task. Tasks added after Start are not run.
func (s *Scheduler) Add(task Task) error {
	if task.Name == "" {
		return errors.New("task name is required")
	}
	if task.Interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", task.Name)
	}
	if task.Fn == nil {
		return fmt.Errorf("task %s: function is required", task.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, task)
	return nil
}

// Starts every registered task on its own goroutine
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.stopChan = make(chan struct{})

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, task, s.stopChan)
	}

	s.logger.Info("Scheduler started", zap.Int("tasks", len(s.tasks)))
}

// Stops all tasks and waits for in-flight runs to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, task Task, stop <-chan struct{}) {
	defer s.wg.Done()

	if task.RunOnStart {
		s.run(ctx, task)
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.run(ctx, task)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Task panicked", zap.String("task", task.Name), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := task.Fn(ctx); err != nil {
		s.logger.Error("Task failed", zap.String("task", task.Name), zap.Error(err))
		return
	}

	s.logger.Debug("Task completed", zap.String("task", task.Name), zap.Duration("duration", time.Since(start)))
}
