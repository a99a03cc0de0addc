// Package sweeper runs the periodic expiry jobs that keep the persistent stores bounded.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// ErrDuplicateJob is returned when a job name is registered twice.
var ErrDuplicateJob = errors.New("sweeper: duplicate job")

// SweepFunc deletes whatever is stale relative to now and reports how many records went.
type SweepFunc func(ctx context.Context, now time.Time) (int, error)

// Observer is notified after every pass.
type Observer interface {
	Swept(job string, deleted int, err error)
}

type job struct {
	name     string
	interval time.Duration
	fn       SweepFunc
}

// Registry owns every periodic sweep in the process. Each name runs at most once.
type Registry struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	jobs     []job
	names    map[string]struct{}
	observer Observer
}

func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{clock: clock, names: make(map[string]struct{})}
}

// WithObserver sets o as the pass observer and returns r.
func (r *Registry) WithObserver(o Observer) *Registry {
	r.observer = o
	return r
}

// Register adds a job that runs fn every interval once Run is called.
func (r *Registry) Register(name string, interval time.Duration, fn SweepFunc) error {
	if interval <= 0 {
		return fmt.Errorf("sweeper: job %q: interval must be positive", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateJob, name)
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job{name: name, interval: interval, fn: fn})
	return nil
}

// Jobs returns the registered job names in registration order.
func (r *Registry) Jobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		out[i] = j.name
	}
	return out
}

// Run starts every registered job in its own goroutine and blocks until ctx is cancelled.
// A failing pass is logged and the job keeps its schedule.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.Lock()
	jobs := append([]job(nil), r.jobs...)
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error {
			r.loop(ctx, j)
			return nil
		})
	}
	return g.Wait()
}

func (r *Registry) loop(ctx context.Context, j job) {
	ticker := r.clock.NewTicker(j.interval)
	defer ticker.Stop()
	slog.Info("sweeper job started", "job", j.name, "interval", j.interval.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper job stopped", "job", j.name)
			return
		case <-ticker.Chan():
			r.pass(ctx, j)
		}
	}
}

func (r *Registry) pass(ctx context.Context, j job) {
	now := r.clock.Now().UTC()
	n, err := j.fn(ctx, now)
	if err != nil {
		slog.Error("sweep failed", "job", j.name, "err", err)
	} else {
		slog.Info("sweep done", "job", j.name, "deleted", n)
	}
	if r.observer != nil {
		r.observer.Swept(j.name, n, err)
	}
}
