// Package session owns the records of live environment sessions. The
// registry is the single holder of mutable per-session state; the run
// loop controller and policy bridge mutate it only through the methods
// here, each scoped to one session handle.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ysjprojects/AgentGym/internal/env"
	"github.com/ysjprojects/AgentGym/internal/parse"
)

// ErrNotFound is returned when a session handle is unknown.
var ErrNotFound = errors.New("session not found")

// historyCap bounds the per-session interaction ring.
const historyCap = 100

// Interaction is one action/observation pair kept in the history ring.
type Interaction struct {
	Timestamp   time.Time
	Action      string
	Observation string
	Reward      float64
}

// DerivedState caches structured facts extracted from the last
// observation. It is recomputed on every observation update and never
// persisted independently of the observation that produced it.
type DerivedState struct {
	Inventory parse.Inventory
	Goal      string
	Commands  []string
}

// Session is one running environment instance. Round and cumulative
// reward only advance within a reset epoch; Reset zeroes both.
type Session struct {
	// Handle is the orchestrator-side identifier.
	Handle string
	// Kind is the backend this session runs on.
	Kind env.Kind
	// BackendID is the backend-assigned environment identifier.
	BackendID int

	Round            int
	CumulativeReward float64
	Done             bool
	// Failed marks a session whose run aborted on a backend error.
	// Stepping is refused until a reset clears it.
	Failed          bool
	LastObservation string
	Derived         DerivedState

	history []Interaction
}

// History returns a copy of the interaction ring, oldest first.
func (s *Session) History() []Interaction {
	out := make([]Interaction, len(s.history))
	copy(out, s.history)
	return out
}

// Registry holds all live sessions keyed by handle. Safe for
// concurrent use; every mutating operation is scoped to one handle so
// sessions never contend with each other beyond map access.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a freshly created environment and returns its session.
func (r *Registry) Add(kind env.Kind, backendID int, initialObservation string) *Session {
	s := &Session{
		Handle:    uuid.New().String(),
		Kind:      kind,
		BackendID: backendID,
	}
	r.setObservation(s, initialObservation, true)

	r.mu.Lock()
	r.sessions[s.Handle] = s
	r.mu.Unlock()
	return s
}

// Get returns the session for a handle.
func (r *Registry) Get(handle string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return s, nil
}

// List returns every live session.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Remove drops a session from the registry.
func (r *Registry) Remove(handle string) {
	r.mu.Lock()
	delete(r.sessions, handle)
	r.mu.Unlock()
}

// MarkFailed flags the session as failed. The flag sticks until the
// next reset.
func (r *Registry) MarkFailed(handle string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	s.Failed = true
	return s, nil
}

// RecordStep folds a step result into the session: advances the round
// counter, accumulates reward, updates the done flag and recomputes
// derived state from the new observation.
func (r *Registry) RecordStep(handle, action string, result env.StepResult) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}

	s.Round++
	s.CumulativeReward += result.Reward
	s.Done = result.Done
	r.setObservation(s, result.Observation, false)

	s.history = append(s.history, Interaction{
		Timestamp:   time.Now().UTC(),
		Action:      action,
		Observation: result.Observation,
		Reward:      result.Reward,
	})
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	return s, nil
}

// RecordReset starts a new epoch: round and cumulative reward return
// to zero, done clears, history empties and derived state is rebuilt
// from the reset observation.
func (r *Registry) RecordReset(handle, observation string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}

	s.Round = 0
	s.CumulativeReward = 0
	s.Done = false
	s.Failed = false
	s.history = nil
	r.setObservation(s, observation, true)
	return s, nil
}

// RecordObservation overwrites the last observation without advancing
// the round, for idempotent observe calls.
func (r *Registry) RecordObservation(handle, observation string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	r.setObservation(s, observation, false)
	return s, nil
}

// setObservation updates the observation and recomputes derived state.
// A full Inventory section replaces the cached inventory wholesale;
// otherwise Got/Crafted deltas keep the cache warm. fresh starts the
// derived state from scratch (create/reset).
func (r *Registry) setObservation(s *Session, observation string, fresh bool) {
	s.LastObservation = observation
	if fresh {
		s.Derived = DerivedState{}
	}
	if observation == "" {
		return
	}

	if s.Kind == env.KindTextCraft {
		state := parse.Crafting(observation)
		if state.Inventory != nil {
			s.Derived.Inventory = state.Inventory
		} else {
			s.Derived.Inventory = parse.ApplyDeltas(s.Derived.Inventory, observation)
		}
		if state.Goal != "" {
			s.Derived.Goal = state.Goal
		}
		if len(state.Commands) > 0 {
			s.Derived.Commands = state.Commands
		}
	}
}
