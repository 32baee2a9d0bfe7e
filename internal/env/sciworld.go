package env

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ysjprojects/AgentGym/internal/transport"
)

// SciWorld drives the science-simulation backend. Same ID and reset
// conventions as babyai, but its step endpoint is /step_visual and it
// exposes an optional structured state snapshot.
type SciWorld struct {
	client *transport.Client
	tuning Tuning
}

// NewSciWorld creates the sciworld adapter.
func NewSciWorld(client *transport.Client, tuning Tuning) *SciWorld {
	return &SciWorld{client: client, tuning: tuning.withDefaults()}
}

func (s *SciWorld) Kind() Kind { return KindSciWorld }

func (s *SciWorld) Create(ctx context.Context, _ CreateConfig) (CreateResult, error) {
	var raw json.RawMessage
	if err := s.client.PostJSON(ctx, "create", "/create", nil, &raw, transport.WithTimeout(s.tuning.CreateTimeout)); err != nil {
		return CreateResult{}, err
	}

	id, err := extractID(KindSciWorld, "create", raw)
	if err != nil {
		return CreateResult{}, err
	}

	reset, err := s.Reset(ctx, id, 0)
	if err != nil {
		return CreateResult{}, fmt.Errorf("initialize after create: %w", err)
	}
	return CreateResult{ID: id, Observation: reset.Observation}, nil
}

func (s *SciWorld) Reset(ctx context.Context, id int, taskIndex int) (StepResult, error) {
	body := map[string]any{"id": id, "data_idx": taskIndex}
	var raw json.RawMessage
	if err := s.client.PostJSON(ctx, "reset", "/reset", body, &raw, transport.WithTimeout(s.tuning.StepTimeout)); err != nil {
		return StepResult{}, err
	}
	result, err := decodeStepEnvelope(KindSciWorld, "reset", raw)
	if err != nil {
		return StepResult{}, err
	}
	result.Reward = 0
	result.Done = false
	return result, nil
}

func (s *SciWorld) Step(ctx context.Context, id int, action string) (StepResult, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return StepResult{}, &ValidationError{Op: "step", Reason: "empty action"}
	}
	body := map[string]any{"id": id, "action": action}
	var raw json.RawMessage
	if err := s.client.PostJSON(ctx, "step", "/step_visual", body, &raw, transport.WithTimeout(s.tuning.StepTimeout)); err != nil {
		return StepResult{}, err
	}
	return decodeStepEnvelope(KindSciWorld, "step", raw)
}

func (s *SciWorld) Observe(ctx context.Context, id int) (string, error) {
	var raw json.RawMessage
	endpoint := fmt.Sprintf("/observation?id=%d", id)
	if err := s.client.GetJSON(ctx, "observe", endpoint, &raw, transport.WithTimeout(s.tuning.ObserveTimeout)); err != nil {
		return "", err
	}
	return coerceObservation(raw), nil
}

func (s *SciWorld) Close(ctx context.Context, id int) {
	closeQuietly(ctx, s.client, KindSciWorld, map[string]any{"id": id})
}

func (s *SciWorld) TestConnection(ctx context.Context) error {
	return testConnection(ctx, s.client, s.tuning.ObserveTimeout)
}

// State returns the backend's structured snapshot of the simulation.
func (s *SciWorld) State(ctx context.Context, id int) (map[string]any, error) {
	var state map[string]any
	endpoint := fmt.Sprintf("/state?id=%d", id)
	if err := s.client.GetJSON(ctx, "state", endpoint, &state, transport.WithTimeout(s.tuning.ObserveTimeout)); err != nil {
		return nil, err
	}
	return state, nil
}
