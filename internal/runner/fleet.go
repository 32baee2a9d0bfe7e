package runner

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ysjprojects/AgentGym/internal/env"
)

// Fleet runs episodes on several backends concurrently, one session
// per job, bounded by a concurrency limit.
type Fleet struct {
	runners map[env.Kind]*Runner
	limit   int
}

// Job describes one episode to run.
type Job struct {
	Kind   env.Kind
	Create env.CreateConfig
}

// NewFleet builds a Fleet from per-kind runners. limit bounds how many
// episodes run at once; zero means unbounded.
func NewFleet(runners []*Runner, limit int) *Fleet {
	m := make(map[env.Kind]*Runner, len(runners))
	for _, r := range runners {
		m[r.Kind()] = r
	}
	return &Fleet{runners: m, limit: limit}
}

// Runner returns the runner for a backend kind, or nil.
func (f *Fleet) Runner(kind env.Kind) *Runner {
	return f.runners[kind]
}

// Run executes all jobs and collects their results in job order. The
// first hard failure cancels the remaining jobs; results for episodes
// that finished before the cancellation are still returned.
func (f *Fleet) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}

	results := make([]Result, len(jobs))
	var mu sync.Mutex

	for i, job := range jobs {
		g.Go(func() error {
			r, ok := f.runners[job.Kind]
			if !ok {
				return &UnknownKindError{Kind: job.Kind}
			}

			sess, err := r.StartSession(gctx, job.Create)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = r.CloseSession(closeCtx, sess.Handle)
			}()

			res, err := r.Run(gctx, sess.Handle)
			if err != nil {
				return err
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

// UnknownKindError reports a job targeting a backend the fleet does
// not carry.
type UnknownKindError struct {
	Kind env.Kind
}

func (e *UnknownKindError) Error() string {
	return "no runner for environment kind " + string(e.Kind)
}
