package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deviceops/fwagent/pkg/engine"
	"github.com/deviceops/fwagent/pkg/errors"
	"github.com/deviceops/fwagent/pkg/transfer"
	"github.com/deviceops/fwagent/pkg/workflow"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var updateRestart bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check the manifest and install an available update",
	Long: `Runs the durable update workflow: evaluate the manifest, transfer the
image to the inactive partition, and commit the installed-image record.
An interrupted run resumes from its last completed state.`,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().BoolVar(&updateRestart, "restart", false, "Restart the device after a successful update")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := ensureDirectories(cfg.StatePath, cfg.LedgerPath, cfg.HistoryPath, cfg.SlotAPath, cfg.SlotBPath, cfg.FSMDBPath); err != nil {
		return err
	}

	fetcher := newFetcher(ctx, cfg)

	dev, err := newDevice(cfg)
	if err != nil {
		return errors.Wrap(err, "device init failed")
	}

	store, err := newLedgerStore(cfg)
	if err != nil {
		return errors.Wrap(err, "ledger init failed")
	}

	hist := newHistory(cfg)
	if hist != nil {
		defer hist.Close()
	}

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := workflow.NewMachine(fetcher, transfer.NewEngine(fetcher, dev), store, hist, cfg.FSMMaxRetries)
	machine.OnProgress(func(percent int, written, total int64) {
		if percent%10 == 0 {
			slog.Info("transfer_progress", "percent", percent, "written", written, "total", total)
		}
	})

	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	req := &workflow.UpdateRequest{
		ManifestURL:    cfg.ManifestURL,
		Device:         cfg.Device,
		CurrentVersion: cfg.CurrentVersion,
	}
	resp := &workflow.UpdateResponse{}

	version, err := start(ctx, cfg.Device, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm started", "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		return errors.Wrap(err, "update failed")
	}

	slog.Info("update finished", "status", resp.Status, "outcome", resp.Outcome, "image_id", resp.ImageID)

	if resp.Outcome != int(engine.OutcomeSuccess) {
		fmt.Println("No update installed")
		return nil
	}

	fmt.Printf("Installed %s (%s)\n", resp.Version, resp.ImageID)

	if updateRestart {
		dev.Restart()
	}
	fmt.Println("Restart the device to boot the new image")

	return nil
}
