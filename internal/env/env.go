// Package env adapts the uniform session protocol (create, reset, step,
// observe, close) onto each environment backend's wire format. Every
// adapter normalizes its backend's idiosyncratic envelopes (object,
// ordered tuple or bare scalar), its session ID field name and its
// completion flag naming into the shared result types below.
package env

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies one of the supported environment backends.
type Kind string

const (
	KindTextCraft Kind = "textcraft"
	KindBabyAI    Kind = "babyai"
	KindSciWorld  Kind = "sciworld"
	KindWebArena  Kind = "webarena"
	KindSearchQA  Kind = "searchqa"
)

// Kinds lists every supported backend kind.
func Kinds() []Kind {
	return []Kind{KindTextCraft, KindBabyAI, KindSciWorld, KindWebArena, KindSearchQA}
}

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindTextCraft, KindBabyAI, KindSciWorld, KindWebArena, KindSearchQA:
		return k, nil
	}
	return "", &ValidationError{Op: "parse kind", Reason: fmt.Sprintf("unsupported environment kind %q", s)}
}

// FreeFormActions reports whether the kind's action space is free-form
// natural language. For these kinds the policy reply is used verbatim
// as the action instead of being run through command extraction.
func (k Kind) FreeFormActions() bool {
	return k == KindWebArena || k == KindSearchQA || k == KindSciWorld
}

// CreateConfig carries optional creation parameters. Only textcraft and
// searchqa interpret any of them; the rest ignore the config entirely.
type CreateConfig struct {
	// Commands overrides the crafting command set (textcraft).
	Commands string
	// Goal overrides the goal (textcraft).
	Goal string
	// TaskID selects the initial task item (searchqa).
	TaskID int
}

// CreateResult is the normalized outcome of environment creation.
type CreateResult struct {
	// ID is the backend-assigned session identifier.
	ID int
	// Observation is the initial observation, empty when the backend
	// returns none until the first reset.
	Observation string
	Reward      float64
	Done        bool
}

// StepResult is the normalized outcome of a step or reset.
type StepResult struct {
	Observation string
	Reward      float64
	// Done is the single loop-termination signal, reconciled from the
	// backend's done/terminated naming by the precedence
	// terminated, then done, then false.
	Done bool
	// Terminated and Truncated carry the backend's original completion
	// flags where present. Terminated is not assumed to mean task
	// success; cumulative reward carries that signal.
	Terminated bool
	Truncated  bool
	// Info preserves any diagnostic payload the backend attached.
	Info map[string]any
}

// Adapter is the capability set every backend adapter implements.
// All calls classify failures as transport, server, protocol or
// validation errors (see errors.go). Close is best-effort: adapters
// log and swallow its failures since teardown must not block cleanup.
type Adapter interface {
	Kind() Kind

	// Create allocates a backend environment instance.
	Create(ctx context.Context, cfg CreateConfig) (CreateResult, error)

	// Reset loads the task at taskIndex and returns its first observation.
	Reset(ctx context.Context, id int, taskIndex int) (StepResult, error)

	// Step executes one action.
	Step(ctx context.Context, id int, action string) (StepResult, error)

	// Observe returns the current observation without changing state.
	Observe(ctx context.Context, id int) (string, error)

	// Close releases the backend instance.
	Close(ctx context.Context, id int)

	// TestConnection probes the backend root endpoint.
	TestConnection(ctx context.Context) error
}

// Renderer is an optional capability: backends that can draw their
// state as an image (babyai) implement it. The run loop never uses it.
type Renderer interface {
	Render(ctx context.Context, id int) (image string, err error)
}

// MetadataProvider is an optional capability: backends exposing
// supplementary render data (webarena) implement it.
type MetadataProvider interface {
	ObservationMetadata(ctx context.Context, id int) (map[string]any, error)
}

// StateProvider is an optional capability: backends exposing a
// structured state snapshot (sciworld) implement it.
type StateProvider interface {
	State(ctx context.Context, id int) (map[string]any, error)
}

// coerceObservation flattens an arbitrary JSON payload into a single
// observation string. Named fields win in a fixed order; anything else
// is serialized deterministically (sorted keys) so equal payloads
// always produce equal observations.
func coerceObservation(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, field := range []string{"observation", "state", "data", "text", "output", "message"} {
			if inner, ok := obj[field]; ok {
				if v := coerceObservation(inner); v != "" {
					return v
				}
			}
		}
		return stableJSON(obj)
	}

	return strings.TrimSpace(string(raw))
}

// stableJSON renders a JSON object with sorted keys.
func stableJSON(obj map[string]json.RawMessage) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		b.Write(key)
		b.WriteByte(':')
		b.Write(obj[k])
	}
	b.WriteByte('}')
	return b.String()
}

// boolField reads a boolean out of a loosely typed envelope field.
func boolField(m map[string]json.RawMessage, key string) (value, ok bool) {
	raw, present := m[key]
	if !present {
		return false, false
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, false
	}
	return v, true
}

// floatField reads a number out of a loosely typed envelope field.
func floatField(m map[string]json.RawMessage, key string) float64 {
	raw, present := m[key]
	if !present {
		return 0
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return v
}
