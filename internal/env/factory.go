package env

import "github.com/ysjprojects/AgentGym/internal/transport"

// New builds the adapter for the given backend kind.
func New(kind Kind, client *transport.Client, tuning Tuning) (Adapter, error) {
	switch kind {
	case KindTextCraft:
		return NewTextCraft(client, tuning), nil
	case KindBabyAI:
		return NewBabyAI(client, tuning), nil
	case KindSciWorld:
		return NewSciWorld(client, tuning), nil
	case KindWebArena:
		return NewWebArena(client, tuning), nil
	case KindSearchQA:
		return NewSearchQA(client, tuning), nil
	}
	return nil, &ValidationError{Op: "new adapter", Reason: "unsupported environment kind " + string(kind)}
}
