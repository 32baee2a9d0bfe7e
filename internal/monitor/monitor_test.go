package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ysjprojects/AgentGym/internal/env"
)

type probeAdapter struct {
	env.Adapter
	kind env.Kind
	err  error
}

func (p *probeAdapter) Kind() env.Kind                          { return p.kind }
func (p *probeAdapter) TestConnection(ctx context.Context) error { return p.err }

func TestMonitorRefreshAll(t *testing.T) {
	up := &probeAdapter{kind: env.KindTextCraft}
	down := &probeAdapter{kind: env.KindWebArena, err: errors.New("connection refused")}
	m := New([]env.Adapter{up, down})

	m.RefreshAll(context.Background())

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.True(t, snap[env.KindTextCraft].Healthy)
	assert.False(t, snap[env.KindWebArena].Healthy)
	assert.Equal(t, "connection refused", snap[env.KindWebArena].Error)

	assert.True(t, m.Healthy(env.KindTextCraft))
	assert.False(t, m.Healthy(env.KindWebArena))
	assert.False(t, m.Healthy(env.KindBabyAI))
}

func TestMonitorRecovery(t *testing.T) {
	backend := &probeAdapter{kind: env.KindSciWorld, err: errors.New("down")}
	m := New([]env.Adapter{backend})

	m.RefreshAll(context.Background())
	assert.False(t, m.Healthy(env.KindSciWorld))

	backend.err = nil
	m.RefreshAll(context.Background())
	assert.True(t, m.Healthy(env.KindSciWorld))
}
