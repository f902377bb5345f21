package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/deviceops/fwagent/pkg/engine"
	"github.com/spf13/cobra"
)

var runRestart bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent loop: confirm the running image, then check periodically",
	Long: `Confirms the running image on startup (cancelling any pending bootloader
rollback), then checks the manifest on the configured interval and installs
updates as they appear.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runRestart, "restart", false, "Restart the device after a successful update")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	agent, dev, hist, err := newAgent(ctx, cfg)
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close()
	}

	// A boot that reaches this point is good enough to keep.
	changed, err := agent.MarkValid()
	if err != nil {
		slog.Error("startup_mark_valid_failed", "error", err)
	} else if changed {
		slog.Info("startup_image_confirmed", "slot", dev.RunningPartition())
	}

	slog.Info("agent_started", "device", cfg.Device, "current_version", cfg.CurrentVersion, "check_interval", cfg.CheckInterval)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("agent_stopped")
			return nil
		case t := <-ticker.C:
			outcome := agent.Tick(ctx, t.UnixMilli())
			if outcome != engine.OutcomeSuccess {
				continue
			}
			if runRestart {
				dev.Restart()
			}
			slog.Info("update_installed_restart_required")
		}
	}
}
