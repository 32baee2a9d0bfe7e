package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	agentgym "github.com/ysjprojects/AgentGym"
	"github.com/ysjprojects/AgentGym/internal/env"
	"github.com/ysjprojects/AgentGym/internal/runner"
)

func newRunCmd() *cobra.Command {
	var (
		kinds  []string
		goal   string
		taskID int
		count  int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run policy-driven episodes to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			orch, err := agentgym.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var jobs []runner.Job
			for _, name := range kinds {
				kind, err := env.ParseKind(name)
				if err != nil {
					return err
				}
				for i := 0; i < count; i++ {
					jobs = append(jobs, runner.Job{
						Kind:   kind,
						Create: env.CreateConfig{Goal: goal, TaskID: taskID},
					})
				}
			}
			if len(jobs) == 0 {
				return fmt.Errorf("no environments selected, use --env")
			}

			log.Printf("running %d episode(s) across %d environment kind(s)", len(jobs), len(kinds))
			results, err := orch.RunEpisodes(ctx, jobs)
			for _, res := range results {
				if res.Handle == "" {
					continue
				}
				fmt.Printf("%-10s %-14s rounds=%-3d reward=%.3f %s\n",
					res.Kind, res.Outcome, res.Rounds, res.Reward, res.StopReason)
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&kinds, "env", nil, "environment kinds to run (textcraft, babyai, sciworld, webarena, searchqa)")
	cmd.Flags().StringVar(&goal, "goal", "", "goal text passed to environment creation")
	cmd.Flags().IntVar(&taskID, "task", 0, "task index for backends that select episodes by index")
	cmd.Flags().IntVar(&count, "count", 1, "episodes per environment kind")
	return cmd
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check connectivity to every backend and the chat policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			orch, err := agentgym.New(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			failed := false
			for kind, perr := range orch.ProbeAll(ctx) {
				if perr != nil {
					failed = true
					fmt.Printf("%-10s DOWN  %v\n", kind, perr)
				} else {
					fmt.Printf("%-10s OK\n", kind)
				}
			}
			if orch.PolicyAvailable(ctx) {
				fmt.Printf("%-10s OK\n", "policy")
			} else {
				fmt.Printf("%-10s DOWN  falling back to deterministic actions\n", "policy")
			}
			if failed {
				return fmt.Errorf("one or more backends unreachable")
			}
			return nil
		},
	}
}
