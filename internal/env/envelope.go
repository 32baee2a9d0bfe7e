package env

import (
	"encoding/json"
	"fmt"
)

// idFields are the session identifier keys observed across backends.
var idFields = []string{"id", "environmentId", "env_id", "env_idx"}

// extractID locates a session identifier in a creation response, which
// may be a bare integer or an object keyed by any known ID field.
func extractID(kind Kind, op string, raw json.RawMessage) (int, error) {
	var direct float64
	if err := json.Unmarshal(raw, &direct); err == nil {
		return int(direct), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		if msg, ok := serverErrorField(obj); ok {
			return 0, &ServerError{Kind: kind, Op: op, Message: msg}
		}
		for _, field := range idFields {
			if v, ok := obj[field]; ok {
				var id float64
				if err := json.Unmarshal(v, &id); err == nil {
					return int(id), nil
				}
			}
		}
	}

	return 0, &ProtocolError{Kind: kind, Op: op, Reason: "no session identifier in response"}
}

// serverErrorField reports a non-empty "error" field in a response body.
func serverErrorField(obj map[string]json.RawMessage) (string, bool) {
	raw, ok := obj["error"]
	if !ok {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil || msg == "" {
		return "", false
	}
	return msg, true
}

// decodeStepEnvelope reconciles the three step/reset envelope shapes
// (5-element tuple, object, bare string) into a StepResult. The tuple
// order is [observation, reward, terminated, truncated, info]; object
// completion naming resolves by terminated, then done, then false,
// with the originals preserved.
func decodeStepEnvelope(kind Kind, op string, raw json.RawMessage) (StepResult, error) {
	if len(raw) == 0 {
		return StepResult{}, &ProtocolError{Kind: kind, Op: op, Reason: "empty response"}
	}

	var tuple []json.RawMessage
	if err := json.Unmarshal(raw, &tuple); err == nil {
		if len(tuple) < 5 {
			return StepResult{}, &ProtocolError{
				Kind: kind, Op: op,
				Reason: fmt.Sprintf("tuple response has %d elements, want 5", len(tuple)),
			}
		}
		var (
			reward     float64
			terminated bool
			truncated  bool
			info       map[string]any
		)
		json.Unmarshal(tuple[1], &reward)
		json.Unmarshal(tuple[2], &terminated)
		json.Unmarshal(tuple[3], &truncated)
		json.Unmarshal(tuple[4], &info)
		return StepResult{
			Observation: coerceObservation(tuple[0]),
			Reward:      reward,
			Done:        terminated,
			Terminated:  terminated,
			Truncated:   truncated,
			Info:        info,
		}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		if msg, ok := serverErrorField(obj); ok {
			return StepResult{}, &ServerError{Kind: kind, Op: op, Message: msg}
		}

		result := StepResult{
			Observation: coerceObservation(raw),
			Reward:      floatField(obj, "reward"),
		}
		terminated, hasTerminated := boolField(obj, "terminated")
		done, hasDone := boolField(obj, "done")
		switch {
		case hasTerminated:
			result.Done = terminated
		case hasDone:
			result.Done = done
		}
		// Terminated echoes the backend's own flag; it is never inferred
		// from done.
		result.Terminated = terminated
		result.Truncated, _ = boolField(obj, "truncated")
		if infoRaw, ok := obj["info"]; ok {
			var info map[string]any
			if err := json.Unmarshal(infoRaw, &info); err == nil {
				result.Info = info
			}
		}
		return result, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return StepResult{Observation: text}, nil
	}

	return StepResult{}, &ProtocolError{Kind: kind, Op: op, Reason: "response is neither tuple, object nor string"}
}
