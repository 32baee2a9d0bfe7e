package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	agentgym "github.com/ysjprojects/AgentGym"
	"github.com/ysjprojects/AgentGym/internal/env"
	"github.com/ysjprojects/AgentGym/internal/parse"
)

var replCommands = []string{":ai", ":observe", ":reset", ":suggest", ":history", ":quit"}

func newPlayCmd() *cobra.Command {
	var (
		kindName string
		goal     string
		taskID   int
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Drive one session interactively",
		Long: "play opens a session on one backend and reads actions from the\n" +
			"terminal. Plain input is sent to the environment as an action.\n" +
			"Commands: :ai (let the policy decide), :observe, :reset [task],\n" +
			":suggest, :history, :quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := env.ParseKind(kindName)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			orch, err := agentgym.New(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			r := orch.Runner(kind)
			sess, err := r.StartSession(ctx, env.CreateConfig{Goal: goal, TaskID: taskID})
			if err != nil {
				return err
			}
			defer r.CloseSession(context.Background(), sess.Handle)

			fmt.Printf("session %s on %s (env %d)\n\n%s\n", sess.Handle, kind, sess.BackendID, sess.LastObservation)

			line := liner.NewLiner()
			defer line.Close()
			line.SetCtrlCAborts(true)
			line.SetCompleter(func(prefix string) (out []string) {
				for _, c := range replCommands {
					if strings.HasPrefix(c, prefix) {
						out = append(out, c)
					}
				}
				return out
			})

			for {
				input, err := line.Prompt(fmt.Sprintf("%s> ", kind))
				if err != nil {
					// Ctrl-C or Ctrl-D ends the session.
					fmt.Println()
					return nil
				}
				input = strings.TrimSpace(input)
				if input == "" {
					continue
				}
				line.AppendHistory(input)

				if input == ":quit" {
					return nil
				}
				if done, err := handleRepl(ctx, orch, kind, sess.Handle, input); err != nil {
					fmt.Printf("error: %v\n", err)
				} else if done {
					fmt.Println("episode finished, :reset to go again")
				}
			}
		},
	}

	cmd.Flags().StringVar(&kindName, "env", "textcraft", "environment kind")
	cmd.Flags().StringVar(&goal, "goal", "", "goal text passed to environment creation")
	cmd.Flags().IntVar(&taskID, "task", 0, "task index for backends that select episodes by index")
	return cmd
}

func handleRepl(ctx context.Context, orch *agentgym.Orchestrator, kind env.Kind, handle, input string) (bool, error) {
	r := orch.Runner(kind)

	switch {
	case input == ":observe":
		obs, err := r.Refresh(ctx, handle)
		if err != nil {
			return false, err
		}
		fmt.Println(obs)
		return false, nil

	case input == ":reset" || strings.HasPrefix(input, ":reset "):
		task := 0
		if rest := strings.TrimSpace(strings.TrimPrefix(input, ":reset")); rest != "" {
			n, err := strconv.Atoi(rest)
			if err != nil {
				return false, fmt.Errorf("bad task index %q", rest)
			}
			task = n
		}
		if err := r.Reset(ctx, handle, task); err != nil {
			return false, err
		}
		sess, err := orch.Registry().Get(handle)
		if err != nil {
			return false, err
		}
		fmt.Println(sess.LastObservation)
		return false, nil

	case input == ":suggest":
		sess, err := orch.Registry().Get(handle)
		if err != nil {
			return false, err
		}
		if kind == env.KindSearchQA {
			fmt.Println("  <search> your query </search>")
			fmt.Println("  <answer> your answer </answer>")
			return false, nil
		}
		for _, s := range parse.Suggestions(sess.Derived.Inventory, sess.Derived.Commands, sess.Derived.Goal) {
			fmt.Printf("  %s\n", s)
		}
		return false, nil

	case input == ":history":
		sess, err := orch.Registry().Get(handle)
		if err != nil {
			return false, err
		}
		for i, h := range sess.History() {
			fmt.Printf("%3d  %-30q reward=%.3f\n", i+1, h.Action, h.Reward)
		}
		return false, nil

	case input == ":ai":
		decision, err := orch.Bridge().NextAction(ctx, handle, mustObservation(orch, handle))
		if err != nil {
			return false, err
		}
		if decision.Stop {
			fmt.Printf("policy stopped: %s\n", decision.StopReason)
			return true, nil
		}
		fmt.Printf("[%s] %s\n", decision.Source, decision.Action)
		return doStep(ctx, orch, kind, handle, decision.Action)

	case strings.HasPrefix(input, ":"):
		return false, fmt.Errorf("unknown command %s", input)

	default:
		return doStep(ctx, orch, kind, handle, input)
	}
}

func doStep(ctx context.Context, orch *agentgym.Orchestrator, kind env.Kind, handle, action string) (bool, error) {
	res, err := orch.Runner(kind).Step(ctx, handle, action)
	if err != nil {
		return false, err
	}
	sess, gerr := orch.Registry().Get(handle)
	if gerr == nil {
		fmt.Println(sess.LastObservation)
		fmt.Printf("reward=%.3f total=%.3f round=%d\n", res.Reward, sess.CumulativeReward, sess.Round)
	}
	return res.Done || res.Terminated, nil
}

func mustObservation(orch *agentgym.Orchestrator, handle string) string {
	sess, err := orch.Registry().Get(handle)
	if err != nil {
		return ""
	}
	return sess.LastObservation
}
