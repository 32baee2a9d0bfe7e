package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/observation", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"observation":"a room"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Config{})
	var out struct {
		Observation string `json:"observation"`
	}
	err := c.GetJSON(context.Background(), "observe", "/observation?id=7", &out)
	require.NoError(t, err)
	assert.Equal(t, "a room", out.Observation)
}

func TestPostJSONSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "look around", body["action"])
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"observation":"ok","reward":0.5,"done":false}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Config{})
	var out json.RawMessage
	err := c.PostJSON(context.Background(), "step", "/step", map[string]any{"id": 1, "action": "look around"}, &out)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"reward":0.5`)
}

func TestPlainTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Question: who wrote Hamlet?"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Config{})
	var out json.RawMessage
	err := c.GetJSON(context.Background(), "observe", "/observation?id=0", &out)
	require.NoError(t, err)

	var s string
	require.NoError(t, json.Unmarshal(out, &s))
	assert.Equal(t, "Question: who wrote Hamlet?", s)
}

func TestNon2xxStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Config{})
	var out json.RawMessage
	err := c.GetJSON(context.Background(), "observe", "/observation", &out)
	require.Error(t, err)
	assert.True(t, IsTransport(err))

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusInternalServerError, terr.Status)
	assert.Equal(t, "observe", terr.Op)
	assert.False(t, terr.Timeout)
}

func TestTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Config{Timeout: 20 * time.Millisecond})
	var out json.RawMessage
	err := c.GetJSON(context.Background(), "step", "/step", &out)
	require.Error(t, err)
	assert.True(t, IsTransport(err))

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Timeout)
}

func TestPerCallTimeoutOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(30 * time.Millisecond):
			_, _ = w.Write([]byte(`"late"`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Config{Timeout: 5 * time.Second})
	var out json.RawMessage
	err := c.GetJSON(context.Background(), "step", "/step", &out, WithTimeout(5*time.Millisecond))
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Timeout)
}

func TestConnectionRefused(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", Config{Timeout: time.Second})
	var out json.RawMessage
	err := c.GetJSON(context.Background(), "create", "/", &out)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}
