// Package scheduler runs the wallet's periodic background work. Every task
// gets its own ticker goroutine; all of them stop together when the
// coordinator is stopped or its context is cancelled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"golang.org/x/sync/errgroup"
)

var (
	ErrRunning     = errors.New("coordinator already running")
	ErrUnknownTask = errors.New("unknown task")
)

// Task is one periodic job. Run errors are logged and the task runs again
// on the next tick.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type task struct {
	Task
	mu sync.Mutex
}

// run executes the task, never overlapping with itself.
func (t *task) run(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Run(ctx)
}

type Coordinator struct {
	log logging.Logger

	mu     sync.Mutex
	tasks  map[string]*task
	order  []string
	cancel context.CancelFunc
	group  *errgroup.Group
}

func New(log logging.Logger) *Coordinator {
	if log == nil {
		log = logging.Discard()
	}
	return &Coordinator{log: log.With("component", "scheduler"), tasks: map[string]*task{}}
}

// Add registers t. Tasks cannot be added while the coordinator runs.
func (c *Coordinator) Add(t Task) error {
	if t.Name == "" || t.Run == nil || t.Interval <= 0 {
		return fmt.Errorf("invalid task %q", t.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group != nil {
		return ErrRunning
	}
	if _, dup := c.tasks[t.Name]; dup {
		return fmt.Errorf("task %q already registered", t.Name)
	}
	c.tasks[t.Name] = &task{Task: t}
	c.order = append(c.order, t.Name)
	return nil
}

// Start launches every task. Each runs once right away and then on its
// interval until Stop or ctx cancellation.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group != nil {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range c.order {
		t := c.tasks[name]
		g.Go(func() error {
			c.loop(ctx, t)
			return nil
		})
	}
	c.cancel = cancel
	c.group = g
	c.log.Info(ctx, "scheduler started", "tasks", len(c.order))
	return nil
}

func (c *Coordinator) loop(ctx context.Context, t *task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		c.tick(ctx, t)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) tick(ctx context.Context, t *task) {
	err := t.run(ctx)
	if err != nil && ctx.Err() == nil {
		c.log.Warn(ctx, "task failed", "task", t.Name, "error", err)
	}
}

// Stop cancels every task and waits for the running ones to return.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel, g := c.cancel, c.group
	c.cancel, c.group = nil, nil
	c.mu.Unlock()

	if g == nil {
		return
	}
	cancel()
	_ = g.Wait()
	c.log.Info(context.Background(), "scheduler stopped")
}

// RunNow executes the named task synchronously and returns its error.
func (c *Coordinator) RunNow(ctx context.Context, name string) error {
	c.mu.Lock()
	t, ok := c.tasks[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return t.run(ctx)
}

// Names lists registered tasks in registration order.
func (c *Coordinator) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}
