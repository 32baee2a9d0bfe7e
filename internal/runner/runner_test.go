package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ysjprojects/AgentGym/internal/env"
	"github.com/ysjprojects/AgentGym/internal/policy"
	"github.com/ysjprojects/AgentGym/internal/session"
	"github.com/ysjprojects/AgentGym/internal/transport"
)

type fakeAdapter struct {
	mu           sync.Mutex
	kind         env.Kind
	createRes    env.CreateResult
	createErr    error
	steps        []env.StepResult
	stepErrs     []error
	stepCalls    int
	observeObs   string
	observeErrs  []error
	observeCalls int
	resetRes     env.StepResult
	closed       []int
}

func (f *fakeAdapter) Kind() env.Kind { return f.kind }

func (f *fakeAdapter) Create(ctx context.Context, cfg env.CreateConfig) (env.CreateResult, error) {
	return f.createRes, f.createErr
}

func (f *fakeAdapter) Reset(ctx context.Context, id, taskIndex int) (env.StepResult, error) {
	return f.resetRes, nil
}

func (f *fakeAdapter) Step(ctx context.Context, id int, action string) (env.StepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.stepCalls
	f.stepCalls++
	if i < len(f.stepErrs) && f.stepErrs[i] != nil {
		return env.StepResult{}, f.stepErrs[i]
	}
	if len(f.steps) == 0 {
		return env.StepResult{Observation: "obs"}, nil
	}
	if i >= len(f.steps) {
		return f.steps[len(f.steps)-1], nil
	}
	return f.steps[i], nil
}

func (f *fakeAdapter) Observe(ctx context.Context, id int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.observeCalls
	f.observeCalls++
	if i < len(f.observeErrs) && f.observeErrs[i] != nil {
		return "", f.observeErrs[i]
	}
	return f.observeObs, nil
}

func (f *fakeAdapter) Close(ctx context.Context, id int) {
	f.mu.Lock()
	f.closed = append(f.closed, id)
	f.mu.Unlock()
}

func (f *fakeAdapter) TestConnection(ctx context.Context) error { return nil }

// fallbackBridge builds a bridge whose backend is unreachable, so every
// decision is deterministic.
func fallbackBridge(maxRounds int) *policy.Bridge {
	return policy.NewBridge(unavailableGenerator{}, policy.BridgeConfig{MaxRounds: maxRounds})
}

type unavailableGenerator struct{}

func (unavailableGenerator) Available(ctx context.Context) bool { return false }
func (unavailableGenerator) Generate(ctx context.Context, turns []policy.Turn) (string, error) {
	panic("unreachable")
}

func fastConfig() Config {
	return Config{
		InitialObsRetries: 1,
		InitialObsDelay:   time.Millisecond,
		StepRetries:       2,
		StepDelay:         time.Millisecond,
		ObserveRetries:    2,
		ObserveDelay:      time.Millisecond,
		RoundDelay:        time.Millisecond,
	}
}

func transportErr(op string) error {
	return &transport.Error{Op: op, URL: "http://localhost:1/x", Timeout: true}
}

func TestRunnerCompletesOnDone(t *testing.T) {
	adapter := &fakeAdapter{
		kind:      env.KindTextCraft,
		createRes: env.CreateResult{ID: 7, Observation: "Goal: craft a chest."},
		steps: []env.StepResult{
			{Observation: "step 1"},
			{Observation: "Got 1 wood", Reward: 1, Done: true},
		},
	}
	reg := session.NewRegistry()
	r := New(adapter, fallbackBridge(10), reg, fastConfig())

	sess, err := r.StartSession(context.Background(), env.CreateConfig{})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), sess.Handle)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, policy.StopTaskCompleted, res.StopReason)
	assert.Equal(t, 2, res.Rounds)
	assert.InDelta(t, 1.0, res.Reward, 0.001)
}

func TestRunnerRoundBudget(t *testing.T) {
	adapter := &fakeAdapter{
		kind:      env.KindSciWorld,
		createRes: env.CreateResult{ID: 1, Observation: "This room is a kitchen."},
		steps:     []env.StepResult{{Observation: "nothing happens"}},
	}
	reg := session.NewRegistry()
	r := New(adapter, fallbackBridge(3), reg, fastConfig())

	sess, err := r.StartSession(context.Background(), env.CreateConfig{})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), sess.Handle)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRoundBudget, res.Outcome)
	assert.Equal(t, policy.StopMaxRounds, res.StopReason)
	assert.Equal(t, 3, res.Rounds)
}

func TestRunnerRetriesTransportStepErrors(t *testing.T) {
	adapter := &fakeAdapter{
		kind:      env.KindBabyAI,
		createRes: env.CreateResult{ID: 2, Observation: "a room"},
		stepErrs:  []error{transportErr("step"), transportErr("step")},
		steps: []env.StepResult{
			{}, {},
			{Observation: "done now", Done: true},
		},
	}
	reg := session.NewRegistry()
	r := New(adapter, fallbackBridge(10), reg, fastConfig())

	sess, err := r.StartSession(context.Background(), env.CreateConfig{})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), sess.Handle)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 3, adapter.stepCalls)
}

func TestRunnerFailsAfterRetryBudget(t *testing.T) {
	adapter := &fakeAdapter{
		kind:      env.KindBabyAI,
		createRes: env.CreateResult{ID: 2, Observation: "a room"},
		stepErrs:  []error{transportErr("step"), transportErr("step"), transportErr("step")},
	}
	reg := session.NewRegistry()
	r := New(adapter, fallbackBridge(10), reg, fastConfig())

	sess, err := r.StartSession(context.Background(), env.CreateConfig{})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), sess.Handle)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 3, adapter.stepCalls)
}

func TestRunnerFailedSessionRefusesStepsUntilReset(t *testing.T) {
	adapter := &fakeAdapter{
		kind:      env.KindBabyAI,
		createRes: env.CreateResult{ID: 8, Observation: "a room"},
		stepErrs:  []error{transportErr("step"), transportErr("step"), transportErr("step")},
		resetRes:  env.StepResult{Observation: "a fresh room"},
	}
	reg := session.NewRegistry()
	r := New(adapter, fallbackBridge(10), reg, fastConfig())

	sess, err := r.StartSession(context.Background(), env.CreateConfig{})
	require.NoError(t, err)
	res, err := r.Run(context.Background(), sess.Handle)
	require.Error(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)
	calls := adapter.stepCalls

	// Manual steps and fresh runs are refused while the failure sticks.
	_, err = r.Step(context.Background(), sess.Handle, "go forward")
	require.Error(t, err)
	assert.Equal(t, calls, adapter.stepCalls)

	_, err = r.Run(context.Background(), sess.Handle)
	require.Error(t, err)
	assert.Equal(t, calls, adapter.stepCalls)

	// Reset clears the failure and stepping works again.
	require.NoError(t, r.Reset(context.Background(), sess.Handle, 0))
	_, err = r.Step(context.Background(), sess.Handle, "go forward")
	require.NoError(t, err)
	assert.Equal(t, calls+1, adapter.stepCalls)
}

func TestRunnerStaleObservationOnObserveFailure(t *testing.T) {
	adapter := &fakeAdapter{
		kind:      env.KindSciWorld,
		createRes: env.CreateResult{ID: 3, Observation: "first look"},
		// Step answers with no observation payload, then the observe
		// poll fails outright.
		steps:       []env.StepResult{{}, {Observation: "end", Done: true}},
		observeErrs: []error{transportErr("observe"), transportErr("observe"), transportErr("observe")},
	}
	reg := session.NewRegistry()
	r := New(adapter, fallbackBridge(10), reg, fastConfig())

	sess, err := r.StartSession(context.Background(), env.CreateConfig{})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), sess.Handle)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)

	got, err := reg.Get(sess.Handle)
	require.NoError(t, err)
	assert.Equal(t, "end", got.LastObservation)
}

func TestRunnerCancellation(t *testing.T) {
	adapter := &fakeAdapter{
		kind:      env.KindWebArena,
		createRes: env.CreateResult{ID: 4, Observation: "page"},
		steps:     []env.StepResult{{Observation: "still going"}},
	}
	reg := session.NewRegistry()
	r := New(adapter, fallbackBridge(1000), reg, fastConfig())

	sess, err := r.StartSession(context.Background(), env.CreateConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := r.Run(ctx, sess.Handle)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
}

func TestRunnerInitialObservationPoll(t *testing.T) {
	adapter := &fakeAdapter{
		kind:        env.KindSearchQA,
		createRes:   env.CreateResult{ID: 5},
		observeErrs: []error{transportErr("observe")},
		observeObs:  "Question: who wrote Hamlet?",
	}
	reg := session.NewRegistry()
	r := New(adapter, fallbackBridge(10), reg, fastConfig())

	sess, err := r.StartSession(context.Background(), env.CreateConfig{})
	require.NoError(t, err)
	assert.Equal(t, "Question: who wrote Hamlet?", sess.LastObservation)
	assert.Equal(t, 2, adapter.observeCalls)
}

func TestRunnerResetResumesFinishedSession(t *testing.T) {
	adapter := &fakeAdapter{
		kind:      env.KindTextCraft,
		createRes: env.CreateResult{ID: 6, Observation: "Goal: craft a chest."},
		steps:     []env.StepResult{{Observation: "all done", Reward: 1, Done: true}},
		resetRes:  env.StepResult{Observation: "Goal: craft a chest."},
	}
	reg := session.NewRegistry()
	r := New(adapter, fallbackBridge(10), reg, fastConfig())

	sess, err := r.StartSession(context.Background(), env.CreateConfig{})
	require.NoError(t, err)
	res, err := r.Run(context.Background(), sess.Handle)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, res.Outcome)

	require.NoError(t, r.Reset(context.Background(), sess.Handle, 0))
	got, err := reg.Get(sess.Handle)
	require.NoError(t, err)
	assert.Zero(t, got.Round)
	assert.Zero(t, got.CumulativeReward)
	assert.False(t, got.Done)

	// The conversation restarted too, so the loop runs again.
	res, err = r.Run(context.Background(), sess.Handle)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
}

func TestRunnerCloseSession(t *testing.T) {
	adapter := &fakeAdapter{
		kind:      env.KindBabyAI,
		createRes: env.CreateResult{ID: 9, Observation: "room"},
	}
	reg := session.NewRegistry()
	r := New(adapter, fallbackBridge(10), reg, fastConfig())

	sess, err := r.StartSession(context.Background(), env.CreateConfig{})
	require.NoError(t, err)
	require.NoError(t, r.CloseSession(context.Background(), sess.Handle))

	_, err = reg.Get(sess.Handle)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, []int{9}, adapter.closed)
}
