package env

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ysjprojects/AgentGym/internal/transport"
)

// SearchQA drives the search question-answering backend. Sessions are
// keyed by "env_idx"; creation returns a bare integer ID and observe
// returns a bare string. Reset selects a question item via "id".
type SearchQA struct {
	client *transport.Client
	tuning Tuning
}

// NewSearchQA creates the searchqa adapter.
func NewSearchQA(client *transport.Client, tuning Tuning) *SearchQA {
	return &SearchQA{client: client, tuning: tuning.withDefaults()}
}

func (s *SearchQA) Kind() Kind { return KindSearchQA }

func (s *SearchQA) Create(ctx context.Context, cfg CreateConfig) (CreateResult, error) {
	body := map[string]any{"id": cfg.TaskID}
	var raw json.RawMessage
	if err := s.client.PostJSON(ctx, "create", "/create", body, &raw, transport.WithTimeout(s.tuning.CreateTimeout)); err != nil {
		return CreateResult{}, err
	}

	id, err := extractID(KindSearchQA, "create", raw)
	if err != nil {
		return CreateResult{}, err
	}

	// The question prompt is served by the observation endpoint, not
	// the creation response.
	observation, err := s.Observe(ctx, id)
	if err != nil {
		return CreateResult{}, fmt.Errorf("initial observation after create: %w", err)
	}
	return CreateResult{ID: id, Observation: observation}, nil
}

func (s *SearchQA) Reset(ctx context.Context, id int, taskIndex int) (StepResult, error) {
	body := map[string]any{"env_idx": id, "id": taskIndex}
	var raw json.RawMessage
	if err := s.client.PostJSON(ctx, "reset", "/reset", body, &raw, transport.WithTimeout(s.tuning.StepTimeout)); err != nil {
		return StepResult{}, err
	}
	result, err := decodeStepEnvelope(KindSearchQA, "reset", raw)
	if err != nil {
		return StepResult{}, err
	}
	result.Reward = 0
	result.Done = false
	return result, nil
}

func (s *SearchQA) Step(ctx context.Context, id int, action string) (StepResult, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return StepResult{}, &ValidationError{Op: "step", Reason: "empty action"}
	}
	body := map[string]any{"env_idx": id, "action": action}
	var raw json.RawMessage
	if err := s.client.PostJSON(ctx, "step", "/step", body, &raw, transport.WithTimeout(s.tuning.StepTimeout)); err != nil {
		return StepResult{}, err
	}
	return decodeStepEnvelope(KindSearchQA, "step", raw)
}

func (s *SearchQA) Observe(ctx context.Context, id int) (string, error) {
	var raw json.RawMessage
	endpoint := fmt.Sprintf("/observation?env_idx=%d", id)
	if err := s.client.GetJSON(ctx, "observe", endpoint, &raw, transport.WithTimeout(s.tuning.ObserveTimeout)); err != nil {
		return "", err
	}
	return coerceObservation(raw), nil
}

func (s *SearchQA) Close(ctx context.Context, id int) {
	closeQuietly(ctx, s.client, KindSearchQA, map[string]any{"env_idx": id})
}

func (s *SearchQA) TestConnection(ctx context.Context) error {
	return testConnection(ctx, s.client, s.tuning.ObserveTimeout)
}
