package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/xyzplot/internal/api"
	"github.com/AaronLay10/xyzplot/internal/events"
	"github.com/AaronLay10/xyzplot/internal/sweep"
	"github.com/AaronLay10/xyzplot/internal/version"
)

var (
	servePort      int
	serveNoExecute bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve output folders, grids, exports and the sweep endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		closeStore, err := openEventStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		api.InitMetrics()
		api.SetInstanceName(cfg.InstanceID())
		if err := api.InitAuth(); err != nil {
			return err
		}
		api.InitTLS()
		api.InitAlerts(cfg.Alerts.WebhookURL)

		store, err := openOutput(cfg.OutputDir())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var runner *sweep.Runner
		if !serveNoExecute {
			policy, err := sweep.ParsePolicy(cfg.Sweep.OnFailure)
			if err != nil {
				return err
			}
			exec, err := buildExecutor(cfg)
			if err != nil {
				return fmt.Errorf("engine: %w", err)
			}
			defer exec.Close()
			if exec.broker != nil {
				api.SetBrokerConnected(exec.broker.IsConnected())
				api.StartAlertMonitor(10*time.Second, exec.broker.IsConnected, ctx.Done())
			}
			runner = sweep.NewRunner(exec, store, policy)
		}

		port := cfg.Port()
		if servePort != 0 {
			port = servePort
		}

		hostname, _ := os.Hostname()
		events.Emit("info", "system.startup", "xyzplot starting", map[string]interface{}{
			"service":  "xyzplot",
			"version":  version.Version,
			"hostname": hostname,
			"pid":      os.Getpid(),
			"port":     port,
			"engine":   cfg.EngineKind(),
		})
		defer events.CloseAllSubscribers()
		defer events.Emit("info", "system.shutdown", "", nil)

		srv := api.NewServer(store, runner, events.GetStore(), cfg.Output.Template)
		return srv.ListenAndServe(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveNoExecute, "no-execute", false, "Browse only; disable POST /xyz/sweep")
	rootCmd.AddCommand(serveCmd)
}
