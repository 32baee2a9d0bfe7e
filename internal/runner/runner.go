package runner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ysjprojects/AgentGym/internal/env"
	"github.com/ysjprojects/AgentGym/internal/observability"
	"github.com/ysjprojects/AgentGym/internal/policy"
	"github.com/ysjprojects/AgentGym/internal/session"
	"github.com/ysjprojects/AgentGym/internal/transport"
	pkgobs "github.com/ysjprojects/AgentGym/pkg/observability"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeRoundBudget Outcome = "round_budget"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeFailed      Outcome = "failed"
)

// Result summarizes a finished run.
type Result struct {
	Handle     string
	Kind       env.Kind
	Rounds     int
	Reward     float64
	Outcome    Outcome
	StopReason string
	Err        error
}

// Config tunes the run loop. Retry counts are attempts after the first
// failure; only transport errors are retried.
type Config struct {
	InitialObsRetries int
	InitialObsDelay   time.Duration
	StepRetries       int
	StepDelay         time.Duration
	ObserveRetries    int
	ObserveDelay      time.Duration
	RoundDelay        time.Duration
}

func (c Config) withDefaults() Config {
	if c.InitialObsRetries == 0 {
		c.InitialObsRetries = 3
	}
	if c.InitialObsDelay == 0 {
		c.InitialObsDelay = 3 * time.Second
	}
	if c.StepRetries == 0 {
		c.StepRetries = 2
	}
	if c.StepDelay == 0 {
		c.StepDelay = 2 * time.Second
	}
	if c.ObserveRetries == 0 {
		c.ObserveRetries = 2
	}
	if c.ObserveDelay == 0 {
		c.ObserveDelay = 1 * time.Second
	}
	if c.RoundDelay == 0 {
		c.RoundDelay = 100 * time.Millisecond
	}
	return c
}

// Runner drives sessions on one environment backend: create, decide,
// step, observe, repeat until the episode ends.
type Runner struct {
	adapter  env.Adapter
	bridge   *policy.Bridge
	registry *session.Registry
	cfg      Config
}

// New builds a Runner over an adapter, a policy bridge, and a registry.
func New(adapter env.Adapter, bridge *policy.Bridge, registry *session.Registry, cfg Config) *Runner {
	return &Runner{
		adapter:  adapter,
		bridge:   bridge,
		registry: registry,
		cfg:      cfg.withDefaults(),
	}
}

// Kind returns the backend kind this runner drives.
func (r *Runner) Kind() env.Kind { return r.adapter.Kind() }

// StartSession creates a backend environment, registers it, and seeds
// the policy conversation with the initial observation.
func (r *Runner) StartSession(ctx context.Context, cfg env.CreateConfig) (*session.Session, error) {
	kind := r.adapter.Kind()

	start := time.Now()
	created, err := r.adapter.Create(ctx, cfg)
	pkgobs.RecordEnvRequest(string(kind), "create", statusOf(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("create %s environment: %w", kind, err)
	}

	observation := created.Observation
	if observation == "" {
		// Some backends hand out an id before the episode has anything
		// to show; poll for the first observation.
		err = r.retry(ctx, "observe", r.cfg.InitialObsRetries, r.cfg.InitialObsDelay, func(ctx context.Context) error {
			var oerr error
			observation, oerr = r.adapter.Observe(ctx, created.ID)
			return oerr
		})
		if err != nil {
			r.closeBackend(created.ID)
			return nil, fmt.Errorf("initial observation for %s env %d: %w", kind, created.ID, err)
		}
	}

	sess := r.registry.Add(kind, created.ID, observation)
	r.bridge.StartConversation(sess.Handle, kind, observation)
	if created.Done {
		r.registry.RecordObservation(sess.Handle, observation)
		r.bridge.MarkDone(sess.Handle)
	}
	pkgobs.SetActiveSessions(len(r.registry.List()))
	log.Printf("runner: started %s session %s (env %d)", kind, sess.Handle, created.ID)
	return sess, nil
}

// Run drives a session until its episode completes, the round budget is
// exhausted, the context is cancelled, or the backend fails for good.
// A nil error does not mean success; check Result.Outcome.
func (r *Runner) Run(ctx context.Context, handle string) (Result, error) {
	sess, err := r.registry.Get(handle)
	if err != nil {
		return Result{}, err
	}
	if sess.Failed {
		return Result{}, fmt.Errorf("session %s failed, reset before running", handle)
	}
	kind := sess.Kind

	runCtx, span := observability.StartSpanWithContext(ctx, "runner.run", map[string]any{
		"session": handle,
		"kind":    string(kind),
	})
	defer span.End()

	for {
		if err := runCtx.Err(); err != nil {
			return r.finish(handle, OutcomeCancelled, "context cancelled", nil), nil
		}

		sess, err := r.registry.Get(handle)
		if err != nil {
			return Result{}, err
		}

		genStart := time.Now()
		decision, err := r.bridge.NextAction(runCtx, handle, sess.LastObservation)
		if err != nil {
			span.SetError(err)
			return r.finish(handle, OutcomeFailed, "", err), err
		}
		pkgobs.RecordGeneration(string(kind), string(decision.Source), time.Since(genStart))

		if decision.Stop {
			outcome := OutcomeRoundBudget
			if decision.StopReason == policy.StopTaskCompleted {
				outcome = OutcomeCompleted
			}
			return r.finish(handle, outcome, decision.StopReason, nil), nil
		}

		stepRes, err := r.step(runCtx, sess.BackendID, decision.Action)
		if err != nil {
			span.SetError(err)
			return r.finish(handle, OutcomeFailed, "", err), err
		}

		observation := stepRes.Observation
		if observation == "" {
			observation = r.observeOrStale(runCtx, sess.BackendID, sess.LastObservation)
		}

		terminal := stepRes.Done || stepRes.Terminated
		rec := stepRes
		rec.Observation = observation
		rec.Done = terminal
		if _, err := r.registry.RecordStep(handle, decision.Action, rec); err != nil {
			return Result{}, err
		}
		if terminal {
			r.bridge.MarkDone(handle)
		}

		select {
		case <-runCtx.Done():
		case <-time.After(r.cfg.RoundDelay):
		}
	}
}

// Step performs one manual action against a session, outside the run
// loop. Used by the interactive REPL.
func (r *Runner) Step(ctx context.Context, handle, action string) (env.StepResult, error) {
	sess, err := r.registry.Get(handle)
	if err != nil {
		return env.StepResult{}, err
	}
	if sess.Done {
		return env.StepResult{}, fmt.Errorf("session %s already finished", handle)
	}
	if sess.Failed {
		return env.StepResult{}, fmt.Errorf("session %s failed, reset before stepping", handle)
	}
	res, err := r.step(ctx, sess.BackendID, action)
	if err != nil {
		return env.StepResult{}, err
	}
	observation := res.Observation
	if observation == "" {
		observation = r.observeOrStale(ctx, sess.BackendID, sess.LastObservation)
	}
	terminal := res.Done || res.Terminated
	rec := res
	rec.Observation = observation
	rec.Done = terminal
	if _, err := r.registry.RecordStep(handle, action, rec); err != nil {
		return env.StepResult{}, err
	}
	if terminal {
		r.bridge.MarkDone(handle)
	}
	return res, nil
}

// Reset rewinds a session to the start of an episode, including a
// finished one, and reseeds its conversation.
func (r *Runner) Reset(ctx context.Context, handle string, taskIndex int) error {
	sess, err := r.registry.Get(handle)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := r.adapter.Reset(ctx, sess.BackendID, taskIndex)
	pkgobs.RecordEnvRequest(string(sess.Kind), "reset", statusOf(err), time.Since(start))
	if err != nil {
		return fmt.Errorf("reset %s env %d: %w", sess.Kind, sess.BackendID, err)
	}

	observation := res.Observation
	if observation == "" {
		observation = r.observeOrStale(ctx, sess.BackendID, "")
	}
	r.registry.RecordReset(handle, observation)
	r.bridge.StartConversation(handle, sess.Kind, observation)
	return nil
}

// Refresh re-fetches the current observation without stepping.
func (r *Runner) Refresh(ctx context.Context, handle string) (string, error) {
	sess, err := r.registry.Get(handle)
	if err != nil {
		return "", err
	}
	start := time.Now()
	observation, err := r.adapter.Observe(ctx, sess.BackendID)
	pkgobs.RecordEnvRequest(string(sess.Kind), "observe", statusOf(err), time.Since(start))
	if err != nil {
		return "", err
	}
	r.registry.RecordObservation(handle, observation)
	return observation, nil
}

// CloseSession tears down the backend environment and forgets the
// session and its conversation.
func (r *Runner) CloseSession(ctx context.Context, handle string) error {
	sess, err := r.registry.Get(handle)
	if err != nil {
		return err
	}
	r.adapter.Close(ctx, sess.BackendID)
	r.bridge.EndConversation(handle)
	r.registry.Remove(handle)
	pkgobs.SetActiveSessions(len(r.registry.List()))
	return nil
}

func (r *Runner) step(ctx context.Context, backendID int, action string) (env.StepResult, error) {
	kind := string(r.adapter.Kind())
	var res env.StepResult
	err := r.retry(ctx, "step", r.cfg.StepRetries, r.cfg.StepDelay, func(ctx context.Context) error {
		start := time.Now()
		var serr error
		res, serr = r.adapter.Step(ctx, backendID, action)
		pkgobs.RecordEnvRequest(kind, "step", statusOf(serr), time.Since(start))
		return serr
	})
	return res, err
}

// observeOrStale polls for an observation and falls back to the last
// known one when the backend will not answer.
func (r *Runner) observeOrStale(ctx context.Context, backendID int, stale string) string {
	var observation string
	err := r.retry(ctx, "observe", r.cfg.ObserveRetries, r.cfg.ObserveDelay, func(ctx context.Context) error {
		var oerr error
		observation, oerr = r.adapter.Observe(ctx, backendID)
		return oerr
	})
	if err != nil {
		log.Printf("runner: observe failed for %s env %d, keeping stale observation: %v", r.adapter.Kind(), backendID, err)
		return stale
	}
	return observation
}

// retry runs fn, retrying transport failures up to retries extra times
// with a fixed delay. Other error kinds fail immediately.
func (r *Runner) retry(ctx context.Context, op string, retries int, delay time.Duration, fn func(context.Context) error) error {
	kind := string(r.adapter.Kind())
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !transport.IsTransport(err) || attempt >= retries {
			return err
		}
		pkgobs.RecordEnvRetry(kind, op)
		log.Printf("runner: %s %s failed (attempt %d/%d), retrying in %s: %v", kind, op, attempt+1, retries+1, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (r *Runner) finish(handle string, outcome Outcome, reason string, err error) Result {
	res := Result{Handle: handle, Kind: r.adapter.Kind(), Outcome: outcome, StopReason: reason, Err: err}
	if outcome == OutcomeFailed {
		// A failed session stays unsteppable until it is reset.
		r.registry.MarkFailed(handle)
	}
	if sess, gerr := r.registry.Get(handle); gerr == nil {
		res.Rounds = sess.Round
		res.Reward = sess.CumulativeReward
		pkgobs.RecordSessionEnd(string(sess.Kind), sess.Round, sess.CumulativeReward)
	}
	log.Printf("runner: session %s finished: outcome=%s rounds=%d reward=%.3f", handle, outcome, res.Rounds, res.Reward)
	return res
}

func (r *Runner) closeBackend(backendID int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.adapter.Close(ctx, backendID)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
