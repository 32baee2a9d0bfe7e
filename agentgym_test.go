package agentgym

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ysjprojects/AgentGym/internal/env"
	"github.com/ysjprojects/AgentGym/pkg/config"
)

func TestNewBuildsAllRunners(t *testing.T) {
	o, err := New(config.DefaultConfig())
	require.NoError(t, err)

	for _, kind := range env.Kinds() {
		assert.NotNil(t, o.Runner(kind), "missing runner for %s", kind)
	}
	assert.NotNil(t, o.Fleet())
	assert.NotNil(t, o.Registry())
	assert.NotNil(t, o.Monitor())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Environments["minecraft"] = config.EnvironmentConfig{BaseURL: "http://localhost:1"}
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestProbeAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	ec := cfg.Environments["textcraft"]
	ec.BaseURL = srv.URL
	cfg.Environments["textcraft"] = ec

	o, err := New(cfg)
	require.NoError(t, err)

	results := o.ProbeAll(context.Background())
	require.Len(t, results, len(env.Kinds()))
	assert.NoError(t, results[env.KindTextCraft])
}
