package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	agentgym "github.com/ysjprojects/AgentGym"
	"github.com/ysjprojects/AgentGym/pkg/observability"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose health and metrics endpoints and monitor backend connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Observability.MetricsPort = port
			}
			orch, err := agentgym.New(cfg)
			if err != nil {
				return err
			}

			observability.InitMetrics()
			observability.InitHealthChecker()

			if err := orch.StartMonitoring(); err != nil {
				return err
			}
			defer orch.StopMonitoring()

			obsServer := observability.NewServer(cfg.Observability.MetricsPort)
			obsServer.Handle("/status", statusHandler(orch))
			errChan := make(chan error, 1)
			go func() {
				log.Printf("serving health and metrics on :%d", cfg.Observability.MetricsPort)
				if serr := obsServer.Start(); serr != nil {
					errChan <- fmt.Errorf("observability server: %w", serr)
				}
			}()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go sampleSystemGauges(ctx)

			select {
			case err := <-errChan:
				return err
			case <-ctx.Done():
				log.Println("shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return obsServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override metrics/health port")
	return cmd
}

// sampleSystemGauges refreshes the process gauges until ctx ends.
func sampleSystemGauges(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		observability.SetMemoryUsage(m.Alloc)
		observability.SetGoroutines(runtime.NumGoroutine())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// statusHandler reports backend health and live session summaries.
func statusHandler(orch *agentgym.Orchestrator) http.Handler {
	type sessionStatus struct {
		Handle string  `json:"handle"`
		Kind   string  `json:"kind"`
		Round  int     `json:"round"`
		Reward float64 `json:"reward"`
		Done   bool    `json:"done"`
	}
	type backendStatus struct {
		Healthy     bool      `json:"healthy"`
		LastChecked time.Time `json:"last_checked"`
		Error       string    `json:"error,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backends := make(map[string]backendStatus)
		for kind, st := range orch.Monitor().Snapshot() {
			backends[string(kind)] = backendStatus{
				Healthy:     st.Healthy,
				LastChecked: st.LastChecked,
				Error:       st.Error,
			}
		}

		sessions := make([]sessionStatus, 0)
		for _, s := range orch.Registry().List() {
			sessions = append(sessions, sessionStatus{
				Handle: s.Handle,
				Kind:   string(s.Kind),
				Round:  s.Round,
				Reward: s.CumulativeReward,
				Done:   s.Done,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"backends": backends,
			"sessions": sessions,
		})
	})
}
