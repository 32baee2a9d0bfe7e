package env

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ysjprojects/AgentGym/internal/transport"
)

// BabyAI drives the grid-navigation backend. Its create endpoint only
// allocates an instance, so the adapter resets immediately to obtain
// the first observation. It also exposes the optional render
// capability returning a base64 image of the grid.
type BabyAI struct {
	client *transport.Client
	tuning Tuning
}

// NewBabyAI creates the babyai adapter.
func NewBabyAI(client *transport.Client, tuning Tuning) *BabyAI {
	return &BabyAI{client: client, tuning: tuning.withDefaults()}
}

func (b *BabyAI) Kind() Kind { return KindBabyAI }

func (b *BabyAI) Create(ctx context.Context, _ CreateConfig) (CreateResult, error) {
	var raw json.RawMessage
	if err := b.client.PostJSON(ctx, "create", "/create", nil, &raw, transport.WithTimeout(b.tuning.CreateTimeout)); err != nil {
		return CreateResult{}, err
	}

	id, err := extractID(KindBabyAI, "create", raw)
	if err != nil {
		return CreateResult{}, err
	}

	// The server hands back an ID only; reset loads the first task and
	// yields the initial observation.
	reset, err := b.Reset(ctx, id, 0)
	if err != nil {
		return CreateResult{}, fmt.Errorf("initialize after create: %w", err)
	}
	return CreateResult{ID: id, Observation: reset.Observation}, nil
}

func (b *BabyAI) Reset(ctx context.Context, id int, taskIndex int) (StepResult, error) {
	body := map[string]any{"id": id, "data_idx": taskIndex}
	var raw json.RawMessage
	if err := b.client.PostJSON(ctx, "reset", "/reset", body, &raw, transport.WithTimeout(b.tuning.StepTimeout)); err != nil {
		return StepResult{}, err
	}
	result, err := decodeStepEnvelope(KindBabyAI, "reset", raw)
	if err != nil {
		return StepResult{}, err
	}
	result.Reward = 0
	result.Done = false
	return result, nil
}

func (b *BabyAI) Step(ctx context.Context, id int, action string) (StepResult, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return StepResult{}, &ValidationError{Op: "step", Reason: "empty action"}
	}
	body := map[string]any{"id": id, "action": action}
	var raw json.RawMessage
	if err := b.client.PostJSON(ctx, "step", "/step", body, &raw, transport.WithTimeout(b.tuning.StepTimeout)); err != nil {
		return StepResult{}, err
	}
	return decodeStepEnvelope(KindBabyAI, "step", raw)
}

func (b *BabyAI) Observe(ctx context.Context, id int) (string, error) {
	var raw json.RawMessage
	endpoint := fmt.Sprintf("/observation?id=%d", id)
	if err := b.client.GetJSON(ctx, "observe", endpoint, &raw, transport.WithTimeout(b.tuning.ObserveTimeout)); err != nil {
		return "", err
	}
	return coerceObservation(raw), nil
}

func (b *BabyAI) Close(ctx context.Context, id int) {
	closeQuietly(ctx, b.client, KindBabyAI, map[string]any{"id": id})
}

func (b *BabyAI) TestConnection(ctx context.Context) error {
	return testConnection(ctx, b.client, b.tuning.ObserveTimeout)
}

// Render returns a base64-encoded image of the current grid state.
func (b *BabyAI) Render(ctx context.Context, id int) (string, error) {
	var resp struct {
		Image string `json:"image"`
		Error string `json:"error"`
	}
	if err := b.client.PostJSON(ctx, "render", "/render", map[string]any{"id": id}, &resp, transport.WithTimeout(b.tuning.StepTimeout)); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &ServerError{Kind: KindBabyAI, Op: "render", Message: resp.Error}
	}
	if resp.Image == "" {
		return "", &ProtocolError{Kind: KindBabyAI, Op: "render", Reason: "no image in response"}
	}
	return resp.Image, nil
}
