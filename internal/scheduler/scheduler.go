// Package scheduler runs named background sweeps on fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"collectpay/pkg/logger"
)

// TaskFunc is one sweep pass. It must be safe to run repeatedly.
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
}

type Scheduler struct {
	tasks  []task
	logger logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    sync.WaitGroup
	running bool
}

func New(log logger.Logger) *Scheduler {
	return &Scheduler{logger: log}
}

// Register adds a named task. Registration after Start has no effect on the
// running loops.
func (s *Scheduler) Register(name string, interval time.Duration, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task{name: name, interval: interval, fn: fn})
}

// Start launches one ticker loop per registered task.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.tasks {
		s.done.Add(1)
		go s.loop(ctx, t)
	}
	s.logger.Info("Scheduler started", map[string]interface{}{
		"tasks": len(s.tasks),
	})
}

// Stop cancels the loops and waits for in-flight passes to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.done.Wait()
	s.logger.Info("Scheduler stopped", nil)
}

// RunTask executes a registered task once, synchronously.
func (s *Scheduler) RunTask(ctx context.Context, name string) error {
	s.mu.Lock()
	var found *task
	for i := range s.tasks {
		if s.tasks[i].name == name {
			found = &s.tasks[i]
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return fmt.Errorf("unknown task %q", name)
	}
	return s.runOnce(ctx, *found)
}

func (s *Scheduler) loop(ctx context.Context, t task) {
	defer s.done.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runOnce(ctx, t); err != nil {
				s.logger.Error("Task failed", map[string]interface{}{
					"task":  t.name,
					"error": err.Error(),
				})
			}
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %q panicked: %v", t.name, r)
		}
	}()
	return t.fn(ctx)
}
