package env

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceObservationString(t *testing.T) {
	assert.Equal(t, "a bare string", coerceObservation(json.RawMessage(`"a bare string"`)))
}

func TestCoerceObservationPrecedence(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"observation wins", `{"observation":"obs","state":"st","data":"d"}`, "obs"},
		{"state next", `{"state":"st","data":"d"}`, "st"},
		{"data next", `{"data":"d","text":"t"}`, "d"},
		{"text next", `{"text":"t","output":"o"}`, "t"},
		{"output next", `{"output":"o","message":"m"}`, "o"},
		{"message last", `{"message":"m"}`, "m"},
		{"nested object", `{"observation":{"text":"inner"}}`, "inner"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, coerceObservation(json.RawMessage(tc.raw)))
		})
	}
}

func TestCoerceObservationStableFallback(t *testing.T) {
	a := coerceObservation(json.RawMessage(`{"b":2,"a":1}`))
	b := coerceObservation(json.RawMessage(`{"a":1,"b":2}`))
	assert.Equal(t, a, b)
	assert.Equal(t, `{"a":1,"b":2}`, a)
}

func TestCoerceObservationEmpty(t *testing.T) {
	assert.Equal(t, "", coerceObservation(nil))
}

func TestExtractIDBareNumber(t *testing.T) {
	id, err := extractID(KindSearchQA, "create", json.RawMessage(`42`))
	require.NoError(t, err)
	assert.Equal(t, 42, id)
}

func TestExtractIDFieldVariants(t *testing.T) {
	for _, raw := range []string{
		`{"id":3}`,
		`{"environmentId":3}`,
		`{"env_id":3}`,
		`{"env_idx":3}`,
	} {
		id, err := extractID(KindTextCraft, "create", json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, 3, id, raw)
	}
}

func TestExtractIDServerError(t *testing.T) {
	_, err := extractID(KindTextCraft, "create", json.RawMessage(`{"error":"out of capacity"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)

	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "out of capacity", serr.Message)
}

func TestExtractIDMissing(t *testing.T) {
	_, err := extractID(KindBabyAI, "create", json.RawMessage(`{"status":"ok"}`))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeStepEnvelopeTuple(t *testing.T) {
	raw := json.RawMessage(`["page text", 0, true, false, {}]`)
	res, err := decodeStepEnvelope(KindWebArena, "step", raw)
	require.NoError(t, err)
	assert.Equal(t, "page text", res.Observation)
	assert.Zero(t, res.Reward)
	assert.True(t, res.Done)
	assert.True(t, res.Terminated)
	assert.False(t, res.Truncated)
}

func TestDecodeStepEnvelopeShortTuple(t *testing.T) {
	_, err := decodeStepEnvelope(KindWebArena, "step", json.RawMessage(`["obs", 0, true]`))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeStepEnvelopeObjectDonePrecedence(t *testing.T) {
	// terminated beats done when both are present.
	res, err := decodeStepEnvelope(KindTextCraft, "step", json.RawMessage(
		`{"observation":"obs","reward":0.5,"terminated":false,"done":true}`))
	require.NoError(t, err)
	assert.False(t, res.Done)
	assert.InDelta(t, 0.5, res.Reward, 0.001)

	res, err = decodeStepEnvelope(KindTextCraft, "step", json.RawMessage(
		`{"observation":"obs","done":true}`))
	require.NoError(t, err)
	assert.True(t, res.Done)

	res, err = decodeStepEnvelope(KindTextCraft, "step", json.RawMessage(
		`{"observation":"obs"}`))
	require.NoError(t, err)
	assert.False(t, res.Done)
}

func TestDecodeStepEnvelopeTerminatedOnlyWhenReported(t *testing.T) {
	// done alone ends the episode but must not claim the backend
	// reported terminated.
	res, err := decodeStepEnvelope(KindTextCraft, "step", json.RawMessage(
		`{"observation":"obs","done":true}`))
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.False(t, res.Terminated)

	res, err = decodeStepEnvelope(KindTextCraft, "step", json.RawMessage(
		`{"observation":"obs","terminated":true}`))
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.True(t, res.Terminated)
}

func TestDecodeStepEnvelopeObjectError(t *testing.T) {
	_, err := decodeStepEnvelope(KindSciWorld, "step", json.RawMessage(`{"error":"unknown action"}`))
	assert.ErrorIs(t, err, ErrServer)
}

func TestDecodeStepEnvelopeBareString(t *testing.T) {
	res, err := decodeStepEnvelope(KindSearchQA, "step", json.RawMessage(`"you found it"`))
	require.NoError(t, err)
	assert.Equal(t, "you found it", res.Observation)
	assert.False(t, res.Done)
}

func TestDecodeStepEnvelopeInfoPassthrough(t *testing.T) {
	res, err := decodeStepEnvelope(KindWebArena, "step", json.RawMessage(
		`{"observation":"obs","info":{"url":"http://x"}}`))
	require.NoError(t, err)
	require.NotNil(t, res.Info)
	assert.Equal(t, "http://x", res.Info["url"])
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" TextCraft ")
	require.NoError(t, err)
	assert.Equal(t, KindTextCraft, k)

	_, err = ParseKind("minecraft")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFreeFormActions(t *testing.T) {
	assert.True(t, KindWebArena.FreeFormActions())
	assert.True(t, KindSearchQA.FreeFormActions())
	assert.True(t, KindSciWorld.FreeFormActions())
	assert.False(t, KindTextCraft.FreeFormActions())
	assert.False(t, KindBabyAI.FreeFormActions())
}
