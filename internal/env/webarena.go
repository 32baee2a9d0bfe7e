package env

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ysjprojects/AgentGym/internal/transport"
)

// WebArena drives the web-browsing backend, the most idiosyncratic of
// the five: sessions are keyed by "env_idx", step responses arrive as
// 5-element tuples [observation, reward, terminated, truncated, info],
// and completion is signaled by "terminated" rather than "done".
// Browser startup and page loads are slow, so its timeout class is
// longer than the other backends'.
type WebArena struct {
	client *transport.Client
	tuning Tuning
}

// NewWebArena creates the webarena adapter.
func NewWebArena(client *transport.Client, tuning Tuning) *WebArena {
	return &WebArena{client: client, tuning: tuning.withDefaults()}
}

func (w *WebArena) Kind() Kind { return KindWebArena }

func (w *WebArena) Create(ctx context.Context, _ CreateConfig) (CreateResult, error) {
	var raw json.RawMessage
	if err := w.client.PostJSON(ctx, "create", "/create", nil, &raw, transport.WithTimeout(w.tuning.CreateTimeout)); err != nil {
		return CreateResult{}, err
	}

	id, err := extractID(KindWebArena, "create", raw)
	if err != nil {
		return CreateResult{}, err
	}

	reset, err := w.Reset(ctx, id, 0)
	if err != nil {
		return CreateResult{}, fmt.Errorf("initialize after create: %w", err)
	}
	return CreateResult{ID: id, Observation: reset.Observation}, nil
}

func (w *WebArena) Reset(ctx context.Context, id int, taskIndex int) (StepResult, error) {
	body := map[string]any{
		"env_idx": id,
		"seed":    taskIndex,
		"idx":     taskIndex,
		"options": nil,
	}
	var raw json.RawMessage
	if err := w.client.PostJSON(ctx, "reset", "/reset", body, &raw, transport.WithTimeout(w.tuning.StepTimeout)); err != nil {
		return StepResult{}, err
	}
	result, err := decodeStepEnvelope(KindWebArena, "reset", raw)
	if err != nil {
		return StepResult{}, err
	}
	result.Reward = 0
	result.Done = false
	return result, nil
}

func (w *WebArena) Step(ctx context.Context, id int, action string) (StepResult, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return StepResult{}, &ValidationError{Op: "step", Reason: "empty action"}
	}
	body := map[string]any{"env_idx": id, "action": action}
	var raw json.RawMessage
	if err := w.client.PostJSON(ctx, "step", "/step", body, &raw, transport.WithTimeout(w.tuning.StepTimeout)); err != nil {
		return StepResult{}, err
	}
	return decodeStepEnvelope(KindWebArena, "step", raw)
}

func (w *WebArena) Observe(ctx context.Context, id int) (string, error) {
	var raw json.RawMessage
	endpoint := fmt.Sprintf("/observation?env_idx=%d", id)
	if err := w.client.GetJSON(ctx, "observe", endpoint, &raw, transport.WithTimeout(w.tuning.ObserveTimeout)); err != nil {
		return "", err
	}
	return coerceObservation(raw), nil
}

func (w *WebArena) Close(ctx context.Context, id int) {
	closeQuietly(ctx, w.client, KindWebArena, map[string]any{"env_idx": id})
}

func (w *WebArena) TestConnection(ctx context.Context) error {
	return testConnection(ctx, w.client, w.tuning.ObserveTimeout)
}

// ObservationMetadata returns supplementary render data, including a
// page screenshot when the backend captured one.
func (w *WebArena) ObservationMetadata(ctx context.Context, id int) (map[string]any, error) {
	var meta map[string]any
	endpoint := fmt.Sprintf("/observation_metadata?env_idx=%d", id)
	if err := w.client.GetJSON(ctx, "observation-metadata", endpoint, &meta, transport.WithTimeout(w.tuning.ObserveTimeout)); err != nil {
		return nil, err
	}
	return meta, nil
}
