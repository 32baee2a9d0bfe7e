package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/ysjprojects/AgentGym/internal/observability"
	"github.com/ysjprojects/AgentGym/pkg/config"
)

// Version information (set via ldflags)
var Version = "dev"

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "agentgym",
		Short: "Drive AI policy episodes against simulated environment backends",
		Long: "agentgym orchestrates sessions on simulated-environment backends\n" +
			"(textcraft, babyai, sciworld, webarena, searchqa): it creates\n" +
			"environments, asks a chat policy for actions, steps the episode,\n" +
			"and tracks rewards until it ends.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return observability.InitFromEnv()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if err := observability.Shutdown(cmd.Context()); err != nil {
				log.Printf("tracing shutdown: %v", err)
			}
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file (YAML)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newPlayCmd())
	root.AddCommand(newProbeCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded config from %s", configFile)
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentgym %s\n", Version)
		},
	}
}
