package env

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ysjprojects/AgentGym/internal/transport"
)

// backendStub records requests and serves canned JSON per path.
type backendStub struct {
	t        *testing.T
	mux      *http.ServeMux
	requests []recordedRequest
}

type recordedRequest struct {
	Path  string
	Query string
	Body  map[string]any
}

func newBackendStub(t *testing.T) *backendStub {
	return &backendStub{t: t, mux: http.NewServeMux()}
}

func (s *backendStub) respond(path, body string) {
	s.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Path: r.URL.Path, Query: r.URL.RawQuery}
		if r.Method == http.MethodPost {
			json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		s.requests = append(s.requests, rec)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
}

func (s *backendStub) client(t *testing.T) *transport.Client {
	srv := httptest.NewServer(s.mux)
	t.Cleanup(srv.Close)
	return transport.NewClient(srv.URL, transport.Config{})
}

func (s *backendStub) lastBody(path string) map[string]any {
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Path == path {
			return s.requests[i].Body
		}
	}
	return nil
}

func TestTextCraftCreateSendsOverrides(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/create", `{"id": 7, "observation": "Goal: craft a chest."}`)
	tc := NewTextCraft(stub.client(t), Tuning{})

	res, err := tc.Create(context.Background(), CreateConfig{
		Commands: "craft 1 chest using 8 planks",
		Goal:     "craft a chest",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, res.ID)
	assert.Equal(t, "Goal: craft a chest.", res.Observation)

	body := stub.lastBody("/create")
	assert.Equal(t, "craft 1 chest using 8 planks", body["commands"])
	assert.Equal(t, "craft a chest", body["goal"])
}

func TestTextCraftCreateIDOnlyEnvelope(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/create", `{"id": 3}`)
	tc := NewTextCraft(stub.client(t), Tuning{})

	res, err := tc.Create(context.Background(), CreateConfig{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ID)
	// No observation field means none, not a serialized envelope.
	assert.Empty(t, res.Observation)
}

func TestTextCraftResetZeroesEpoch(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/reset", `{"observation": "fresh start", "reward": 0.9, "done": true}`)
	tc := NewTextCraft(stub.client(t), Tuning{})

	res, err := tc.Reset(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.Equal(t, "fresh start", res.Observation)
	assert.Zero(t, res.Reward)
	assert.False(t, res.Done)

	body := stub.lastBody("/reset")
	assert.Equal(t, float64(7), body["id"])
	assert.Equal(t, float64(2), body["data_idx"])
}

func TestTextCraftStep(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/step", `{"observation": "Got 1 wood", "reward": 0, "done": false}`)
	tc := NewTextCraft(stub.client(t), Tuning{})

	res, err := tc.Step(context.Background(), 7, "  get 1 wood  ")
	require.NoError(t, err)
	assert.Equal(t, "Got 1 wood", res.Observation)

	body := stub.lastBody("/step")
	assert.Equal(t, "get 1 wood", body["action"])
	assert.Equal(t, float64(7), body["id"])
}

func TestStepRejectsEmptyAction(t *testing.T) {
	stub := newBackendStub(t)
	tc := NewTextCraft(stub.client(t), Tuning{})

	_, err := tc.Step(context.Background(), 7, "   ")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, stub.requests)
}

func TestTextCraftObserve(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/observation", `"Inventory: [oak_log] (2)"`)
	tc := NewTextCraft(stub.client(t), Tuning{})

	obs, err := tc.Observe(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Inventory: [oak_log] (2)", obs)
	assert.Equal(t, "id=7", stub.requests[0].Query)
}

func TestBabyAICreateResetsForFirstObservation(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/create", `{"id": 11}`)
	stub.respond("/reset", `{"observation": "go to the red ball"}`)
	ba := NewBabyAI(stub.client(t), Tuning{})

	res, err := ba.Create(context.Background(), CreateConfig{})
	require.NoError(t, err)
	assert.Equal(t, 11, res.ID)
	assert.Equal(t, "go to the red ball", res.Observation)

	body := stub.lastBody("/reset")
	assert.Equal(t, float64(11), body["id"])
	assert.Equal(t, float64(0), body["data_idx"])
}

func TestBabyAIRender(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/render", `{"image": "aGVsbG8="}`)
	ba := NewBabyAI(stub.client(t), Tuning{})

	img, err := ba.Render(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", img)
}

func TestBabyAIRenderErrors(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/render", `{"error": "no such env"}`)
	ba := NewBabyAI(stub.client(t), Tuning{})
	_, err := ba.Render(context.Background(), 99)
	assert.ErrorIs(t, err, ErrServer)

	stub2 := newBackendStub(t)
	stub2.respond("/render", `{}`)
	ba2 := NewBabyAI(stub2.client(t), Tuning{})
	_, err = ba2.Render(context.Background(), 11)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestSciWorldStepVisualEndpoint(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/step_visual", `{"observation": "You open the door.", "reward": 5, "done": false}`)
	sw := NewSciWorld(stub.client(t), Tuning{})

	res, err := sw.Step(context.Background(), 2, "open door")
	require.NoError(t, err)
	assert.Equal(t, "You open the door.", res.Observation)
	assert.InDelta(t, 5, res.Reward, 0.001)
	assert.Equal(t, "/step_visual", stub.requests[0].Path)
}

func TestSciWorldState(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/state", `{"taskName": "boil water", "look": "kitchen"}`)
	sw := NewSciWorld(stub.client(t), Tuning{})

	state, err := sw.State(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "boil water", state["taskName"])
	assert.Equal(t, "id=2", stub.requests[0].Query)
}

func TestWebArenaResetBody(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/reset", `["start page", 0, false, false, {}]`)
	wa := NewWebArena(stub.client(t), Tuning{})

	res, err := wa.Reset(context.Background(), 4, 9)
	require.NoError(t, err)
	assert.Equal(t, "start page", res.Observation)

	body := stub.lastBody("/reset")
	assert.Equal(t, float64(4), body["env_idx"])
	assert.Equal(t, float64(9), body["seed"])
	assert.Equal(t, float64(9), body["idx"])
	_, hasOptions := body["options"]
	assert.True(t, hasOptions)
}

func TestWebArenaStepTuple(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/step", `["result page", 1.0, true, false, {"url": "http://x"}]`)
	wa := NewWebArena(stub.client(t), Tuning{})

	res, err := wa.Step(context.Background(), 4, "click [123]")
	require.NoError(t, err)
	assert.Equal(t, "result page", res.Observation)
	assert.True(t, res.Done)
	assert.True(t, res.Terminated)
	assert.False(t, res.Truncated)
	assert.InDelta(t, 1.0, res.Reward, 0.001)

	body := stub.lastBody("/step")
	assert.Equal(t, float64(4), body["env_idx"])
	assert.Equal(t, "click [123]", body["action"])
}

func TestWebArenaObservationMetadata(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/observation_metadata", `{"screenshot": "img", "url": "http://x"}`)
	wa := NewWebArena(stub.client(t), Tuning{})

	meta, err := wa.ObservationMetadata(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "img", meta["screenshot"])
	assert.Equal(t, "env_idx=4", stub.requests[0].Query)
}

func TestSearchQACreateObservesForQuestion(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/create", `5`)
	stub.respond("/observation", `"Question: who wrote Hamlet?"`)
	sq := NewSearchQA(stub.client(t), Tuning{})

	res, err := sq.Create(context.Background(), CreateConfig{TaskID: 12})
	require.NoError(t, err)
	assert.Equal(t, 5, res.ID)
	assert.Equal(t, "Question: who wrote Hamlet?", res.Observation)

	body := stub.lastBody("/create")
	assert.Equal(t, float64(12), body["id"])
}

func TestSearchQAResetBody(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/reset", `{"observation": "Question: next one"}`)
	sq := NewSearchQA(stub.client(t), Tuning{})

	_, err := sq.Reset(context.Background(), 5, 13)
	require.NoError(t, err)

	body := stub.lastBody("/reset")
	assert.Equal(t, float64(5), body["env_idx"])
	assert.Equal(t, float64(13), body["id"])
}

func TestCreateServerError(t *testing.T) {
	stub := newBackendStub(t)
	stub.respond("/create", `{"error": "all environments in use"}`)
	tc := NewTextCraft(stub.client(t), Tuning{})

	_, err := tc.Create(context.Background(), CreateConfig{})
	assert.ErrorIs(t, err, ErrServer)
}

func TestNewAdapterFactory(t *testing.T) {
	client := transport.NewClient("http://localhost:1", transport.Config{})
	for _, kind := range Kinds() {
		a, err := New(kind, client, Tuning{})
		require.NoError(t, err, kind)
		assert.Equal(t, kind, a.Kind())
	}
	_, err := New(Kind("nethack"), client, Tuning{})
	assert.ErrorIs(t, err, ErrValidation)
}
