// Package agentgym assembles the environment session orchestrator: HTTP
// adapters for the simulated-environment backends, the policy bridge
// that turns observations into actions, the session registry, and the
// run loop that drives episodes end to end.
package agentgym

import (
	"context"
	"fmt"

	"github.com/ysjprojects/AgentGym/internal/env"
	"github.com/ysjprojects/AgentGym/internal/monitor"
	"github.com/ysjprojects/AgentGym/internal/policy"
	"github.com/ysjprojects/AgentGym/internal/runner"
	"github.com/ysjprojects/AgentGym/internal/session"
	"github.com/ysjprojects/AgentGym/internal/transport"
	"github.com/ysjprojects/AgentGym/pkg/config"
	"github.com/ysjprojects/AgentGym/pkg/observability"
)

// Orchestrator wires the backends, policy, registry, and runners built
// from one configuration.
type Orchestrator struct {
	cfg      *config.Config
	registry *session.Registry
	bridge   *policy.Bridge
	gen      *policy.Generator
	adapters map[env.Kind]env.Adapter
	runners  map[env.Kind]*runner.Runner
	fleet    *runner.Fleet
	monitor  *monitor.Monitor
}

// New builds an Orchestrator from the configuration.
func New(cfg *config.Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	gen := policy.NewGenerator(policy.GeneratorConfig{
		BaseURL:           cfg.Policy.BaseURL,
		APIKey:            cfg.Policy.APIKey,
		Model:             cfg.Policy.Model,
		Temperature:       cfg.Policy.Temperature,
		MaxTokens:         cfg.Policy.MaxTokens,
		GenerationTimeout: cfg.Policy.GenerationTimeout.Std(),
		ProbeTimeout:      cfg.Policy.ProbeTimeout.Std(),
		ProbeCooldown:     cfg.Policy.ProbeCooldown.Std(),
	})
	bridge := policy.NewBridge(gen, policy.BridgeConfig{
		MaxRounds:    cfg.Policy.MaxRounds,
		MaxTurnPairs: cfg.Policy.MaxTurnPairs,
	})
	registry := session.NewRegistry()

	runnerCfg := runner.Config{
		InitialObsRetries: cfg.Runner.InitialObsRetries,
		InitialObsDelay:   cfg.Runner.InitialObsDelay.Std(),
		StepRetries:       cfg.Runner.StepRetries,
		StepDelay:         cfg.Runner.StepDelay.Std(),
		ObserveRetries:    cfg.Runner.ObserveRetries,
		ObserveDelay:      cfg.Runner.ObserveDelay.Std(),
		RoundDelay:        cfg.Runner.RoundDelay.Std(),
	}

	adapters := make(map[env.Kind]env.Adapter)
	runners := make(map[env.Kind]*runner.Runner)
	var runnerList []*runner.Runner
	for name, ec := range cfg.Environments {
		kind, err := env.ParseKind(name)
		if err != nil {
			return nil, err
		}
		client := transport.NewClient(ec.BaseURL, transport.Config{
			Timeout:           ec.StepTimeout.Std(),
			RequestsPerSecond: ec.RequestsPerSecond,
			Burst:             ec.Burst,
		})
		adapter, err := env.New(kind, client, env.Tuning{
			CreateTimeout:  ec.CreateTimeout.Std(),
			StepTimeout:    ec.StepTimeout.Std(),
			ObserveTimeout: ec.ObserveTimeout.Std(),
		})
		if err != nil {
			return nil, err
		}
		adapters[kind] = adapter
		r := runner.New(adapter, bridge, registry, runnerCfg)
		runners[kind] = r
		runnerList = append(runnerList, r)
	}

	adapterList := make([]env.Adapter, 0, len(adapters))
	for _, a := range adapters {
		adapterList = append(adapterList, a)
	}

	o := &Orchestrator{
		cfg:      cfg,
		registry: registry,
		bridge:   bridge,
		gen:      gen,
		adapters: adapters,
		runners:  runners,
		fleet:    runner.NewFleet(runnerList, cfg.Runner.Concurrency),
		monitor:  monitor.New(adapterList),
	}
	return o, nil
}

// Runner returns the runner for a backend kind, or nil.
func (o *Orchestrator) Runner(kind env.Kind) *runner.Runner {
	return o.runners[kind]
}

// Fleet returns the concurrent episode runner.
func (o *Orchestrator) Fleet() *runner.Fleet { return o.fleet }

// Registry returns the session registry.
func (o *Orchestrator) Registry() *session.Registry { return o.registry }

// Bridge returns the policy bridge.
func (o *Orchestrator) Bridge() *policy.Bridge { return o.bridge }

// Monitor returns the connectivity monitor.
func (o *Orchestrator) Monitor() *monitor.Monitor { return o.monitor }

// StartMonitoring registers health checks and begins the periodic
// connectivity refresh.
func (o *Orchestrator) StartMonitoring() error {
	checker := observability.GetHealthChecker()
	checker.RegisterCheck(observability.PolicyCheck(func(ctx context.Context) error {
		if !o.gen.Available(ctx) {
			return fmt.Errorf("chat backend unavailable")
		}
		return nil
	}))
	return o.monitor.Start(o.cfg.Monitor.Schedule)
}

// StopMonitoring ends the periodic connectivity refresh.
func (o *Orchestrator) StopMonitoring() { o.monitor.Stop() }

// ProbeAll checks every backend once and returns per-kind errors.
func (o *Orchestrator) ProbeAll(ctx context.Context) map[env.Kind]error {
	out := make(map[env.Kind]error, len(o.adapters))
	for kind, a := range o.adapters {
		out[kind] = a.TestConnection(ctx)
	}
	return out
}

// RunEpisodes executes the jobs concurrently and returns their results.
func (o *Orchestrator) RunEpisodes(ctx context.Context, jobs []runner.Job) ([]runner.Result, error) {
	return o.fleet.Run(ctx, jobs)
}

// PolicyAvailable reports whether the chat backend currently answers.
func (o *Orchestrator) PolicyAvailable(ctx context.Context) bool {
	return o.gen.Available(ctx)
}
