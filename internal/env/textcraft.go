package env

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ysjprojects/AgentGym/internal/transport"
)

// TextCraft drives the crafting backend. It speaks object envelopes
// keyed by "id" and returns plain-text observations with Inventory,
// Crafting commands and Goal sections.
type TextCraft struct {
	client *transport.Client
	tuning Tuning
}

// NewTextCraft creates the textcraft adapter.
func NewTextCraft(client *transport.Client, tuning Tuning) *TextCraft {
	return &TextCraft{client: client, tuning: tuning.withDefaults()}
}

func (t *TextCraft) Kind() Kind { return KindTextCraft }

func (t *TextCraft) Create(ctx context.Context, cfg CreateConfig) (CreateResult, error) {
	body := map[string]any{}
	if cfg.Commands != "" {
		body["commands"] = cfg.Commands
	}
	if cfg.Goal != "" {
		body["goal"] = cfg.Goal
	}

	var raw json.RawMessage
	if err := t.client.PostJSON(ctx, "create", "/create", body, &raw, transport.WithTimeout(t.tuning.CreateTimeout)); err != nil {
		return CreateResult{}, err
	}

	id, err := extractID(KindTextCraft, "create", raw)
	if err != nil {
		return CreateResult{}, err
	}

	result := CreateResult{ID: id}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		// An ID-only envelope carries no observation; leave it empty so
		// the caller polls for the first one instead of seeing the
		// envelope itself.
		for _, field := range []string{"observation", "state", "data", "text", "output", "message"} {
			if inner, ok := obj[field]; ok {
				result.Observation = coerceObservation(inner)
				break
			}
		}
		result.Reward = floatField(obj, "reward")
		result.Done, _ = boolField(obj, "done")
	}
	return result, nil
}

func (t *TextCraft) Reset(ctx context.Context, id int, taskIndex int) (StepResult, error) {
	body := map[string]any{"id": id, "data_idx": taskIndex}
	var raw json.RawMessage
	if err := t.client.PostJSON(ctx, "reset", "/reset", body, &raw, transport.WithTimeout(t.tuning.StepTimeout)); err != nil {
		return StepResult{}, err
	}
	result, err := decodeStepEnvelope(KindTextCraft, "reset", raw)
	if err != nil {
		return StepResult{}, err
	}
	// A reset begins a fresh epoch regardless of what the backend echoes.
	result.Reward = 0
	result.Done = false
	return result, nil
}

func (t *TextCraft) Step(ctx context.Context, id int, action string) (StepResult, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return StepResult{}, &ValidationError{Op: "step", Reason: "empty action"}
	}
	body := map[string]any{"id": id, "action": action}
	var raw json.RawMessage
	if err := t.client.PostJSON(ctx, "step", "/step", body, &raw, transport.WithTimeout(t.tuning.StepTimeout)); err != nil {
		return StepResult{}, err
	}
	return decodeStepEnvelope(KindTextCraft, "step", raw)
}

func (t *TextCraft) Observe(ctx context.Context, id int) (string, error) {
	var raw json.RawMessage
	endpoint := fmt.Sprintf("/observation?id=%d", id)
	if err := t.client.GetJSON(ctx, "observe", endpoint, &raw, transport.WithTimeout(t.tuning.ObserveTimeout)); err != nil {
		return "", err
	}
	return coerceObservation(raw), nil
}

func (t *TextCraft) Close(ctx context.Context, id int) {
	closeQuietly(ctx, t.client, KindTextCraft, map[string]any{"id": id})
}

func (t *TextCraft) TestConnection(ctx context.Context) error {
	return testConnection(ctx, t.client, t.tuning.ObserveTimeout)
}

// closeQuietly issues a best-effort close. Teardown must never block
// caller cleanup, so failures are logged and swallowed.
func closeQuietly(ctx context.Context, client *transport.Client, kind Kind, body map[string]any) {
	if err := client.PostJSON(ctx, "close", "/close", body, nil); err != nil {
		log.Printf("%s close: %v (ignored)", kind, err)
	}
}

func testConnection(ctx context.Context, client *transport.Client, timeout time.Duration) error {
	var raw json.RawMessage
	return client.GetJSON(ctx, "test-connection", "/", &raw, transport.WithTimeout(timeout))
}
