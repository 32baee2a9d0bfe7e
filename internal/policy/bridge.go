package policy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/ysjprojects/AgentGym/internal/env"
)

// Source tags where a decided action came from.
type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// Stop reasons reported when a conversation will not produce more actions.
const (
	StopTaskCompleted = "Task completed"
	StopMaxRounds     = "Max rounds reached"
)

var (
	// ErrNoConversation means no conversation was started for the handle.
	ErrNoConversation = errors.New("policy: no conversation for session")
	// ErrGenerationInFlight means a generation for the same session is
	// already running; the caller should drop the duplicate request.
	ErrGenerationInFlight = errors.New("policy: generation already in progress")
)

// Decision is the outcome of one action-selection round.
type Decision struct {
	Action     string
	Source     Source
	Round      int
	Stop       bool
	StopReason string
}

// textGenerator is the slice of Generator the bridge needs; narrowed
// for testability.
type textGenerator interface {
	Available(ctx context.Context) bool
	Generate(ctx context.Context, turns []Turn) (string, error)
}

// BridgeConfig tunes conversation behavior.
type BridgeConfig struct {
	// MaxRounds bounds actions per conversation.
	MaxRounds int
	// MaxTurnPairs bounds how many user/assistant pairs are sent to the
	// model; the system turn is always kept.
	MaxTurnPairs int
}

func (c BridgeConfig) withDefaults() BridgeConfig {
	if c.MaxRounds == 0 {
		c.MaxRounds = 50
	}
	if c.MaxTurnPairs == 0 {
		c.MaxTurnPairs = 40
	}
	return c
}

type conversation struct {
	genMu sync.Mutex // duplicate-generation guard, TryLock only

	mu       sync.Mutex
	kind     env.Kind
	turns    []Turn
	round    int
	done     bool
	fallback bool
}

// Bridge maps session handles to conversations and turns observations
// into actions, via the model when it answers and deterministically
// when it does not. Once a session drops to fallback it stays there.
type Bridge struct {
	gen textGenerator
	cfg BridgeConfig

	mu    sync.RWMutex
	convs map[string]*conversation
}

// NewBridge builds a Bridge over the given generator.
func NewBridge(gen textGenerator, cfg BridgeConfig) *Bridge {
	return &Bridge{
		gen:   gen,
		cfg:   cfg.withDefaults(),
		convs: make(map[string]*conversation),
	}
}

// StartConversation seeds a conversation for a session: one system turn
// with the kind's instruction template, then the initial observation as
// the first user turn when one exists. An existing conversation for the
// handle is replaced.
func (b *Bridge) StartConversation(handle string, kind env.Kind, initialObservation string) {
	turns := []Turn{{Role: "system", Content: SystemPrompt(kind)}}
	if initialObservation != "" {
		turns = append(turns, Turn{Role: "user", Content: initialObservation})
	}
	conv := &conversation{kind: kind, turns: turns}

	b.mu.Lock()
	if _, ok := b.convs[handle]; ok {
		log.Printf("policy: replacing existing conversation for %s", handle)
	}
	b.convs[handle] = conv
	b.mu.Unlock()
}

// EndConversation drops the conversation for a session.
func (b *Bridge) EndConversation(handle string) {
	b.mu.Lock()
	delete(b.convs, handle)
	b.mu.Unlock()
}

// MarkDone records that the environment reported a terminal state, so
// the next NextAction call stops with StopTaskCompleted.
func (b *Bridge) MarkDone(handle string) {
	if conv := b.lookup(handle); conv != nil {
		conv.mu.Lock()
		conv.done = true
		conv.mu.Unlock()
	}
}

// Conversation returns a copy of the session's turns so far.
func (b *Bridge) Conversation(handle string) ([]Turn, error) {
	conv := b.lookup(handle)
	if conv == nil {
		return nil, ErrNoConversation
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	out := make([]Turn, len(conv.turns))
	copy(out, conv.turns)
	return out, nil
}

// Round returns how many actions the session has decided so far.
func (b *Bridge) Round(handle string) (int, error) {
	conv := b.lookup(handle)
	if conv == nil {
		return 0, ErrNoConversation
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.round, nil
}

func (b *Bridge) lookup(handle string) *conversation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.convs[handle]
}

// NextAction decides the next action for a session given the current
// observation. Only one generation per session may run at a time;
// concurrent calls fail with ErrGenerationInFlight instead of queueing.
func (b *Bridge) NextAction(ctx context.Context, handle, observation string) (Decision, error) {
	conv := b.lookup(handle)
	if conv == nil {
		return Decision{}, ErrNoConversation
	}
	if !conv.genMu.TryLock() {
		return Decision{}, ErrGenerationInFlight
	}
	defer conv.genMu.Unlock()

	conv.mu.Lock()
	done, round, fallback := conv.done, conv.round, conv.fallback
	conv.mu.Unlock()

	if done {
		return Decision{Stop: true, StopReason: StopTaskCompleted, Round: round}, nil
	}
	if round >= b.cfg.MaxRounds {
		return Decision{Stop: true, StopReason: StopMaxRounds, Round: round}, nil
	}

	if !fallback {
		if b.gen.Available(ctx) {
			d, err := b.generateWithAI(ctx, conv, observation)
			if err == nil {
				return d, nil
			}
			log.Printf("policy: generation failed for %s, switching to fallback: %v", handle, err)
		} else {
			log.Printf("policy: chat backend unavailable, switching %s to fallback", handle)
		}
		conv.mu.Lock()
		conv.fallback = true
		conv.mu.Unlock()
	}

	return b.fallbackDecision(conv, observation), nil
}

func (b *Bridge) generateWithAI(ctx context.Context, conv *conversation, observation string) (Decision, error) {
	conv.mu.Lock()
	prompt := b.promptTurns(conv)
	// On round zero a seeded conversation already carries the initial
	// observation as its last turn; an unseeded one does not.
	appendUser := conv.round > 0 || len(conv.turns) == 1
	if appendUser {
		prompt = append(prompt, Turn{Role: "user", Content: observation})
	}
	kind := conv.kind
	conv.mu.Unlock()

	reply, err := b.gen.Generate(ctx, prompt)
	if err != nil {
		return Decision{}, err
	}

	var action string
	if kind.FreeFormActions() {
		action = strings.TrimSpace(reply)
		if action == "" {
			return Decision{}, fmt.Errorf("empty reply")
		}
	} else {
		var ok bool
		action, ok = ExtractAction(reply)
		if !ok {
			return Decision{}, fmt.Errorf("no usable action in reply %q", truncate(reply, 80))
		}
	}

	conv.mu.Lock()
	if appendUser {
		conv.turns = append(conv.turns, Turn{Role: "user", Content: observation})
	}
	conv.turns = append(conv.turns, Turn{Role: "assistant", Content: reply})
	conv.round++
	round := conv.round
	conv.mu.Unlock()

	return Decision{Action: action, Source: SourceAI, Round: round}, nil
}

func (b *Bridge) fallbackDecision(conv *conversation, observation string) Decision {
	conv.mu.Lock()
	defer conv.mu.Unlock()

	action := FallbackAction(observation, conv.round, conv.kind)
	conv.turns = append(conv.turns,
		Turn{Role: "user", Content: observation},
		Turn{Role: "assistant", Content: "Fallback action: " + action},
	)
	conv.round++
	return Decision{Action: action, Source: SourceFallback, Round: conv.round}
}

// promptTurns trims the conversation to the system turn plus the most
// recent turn pairs. Caller holds conv.mu.
func (b *Bridge) promptTurns(conv *conversation) []Turn {
	limit := 2 * b.cfg.MaxTurnPairs
	turns := conv.turns
	if len(turns) <= limit+1 {
		out := make([]Turn, len(turns), len(turns)+1)
		copy(out, turns)
		return out
	}
	out := make([]Turn, 0, limit+2)
	out = append(out, turns[0])
	return append(out, turns[len(turns)-limit:]...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
