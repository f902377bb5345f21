package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show partition, ledger, and last-install status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := ensureDirectories(cfg.StatePath, cfg.LedgerPath); err != nil {
		return err
	}

	dev, err := newDevice(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Device:           %s\n", cfg.Device)
	fmt.Printf("Current version:  %s\n", cfg.CurrentVersion)
	fmt.Printf("Running slot:     %s (%s)\n", dev.RunningPartition(), dev.VerificationState(dev.RunningPartition()))

	if next, ok := dev.NextUpdatePartition(); ok {
		fmt.Printf("Update slot:      %s (%s)\n", next, dev.VerificationState(next))
	} else {
		fmt.Printf("Update slot:      unknown\n")
	}
	if invalid, ok := dev.LastInvalidPartition(); ok {
		fmt.Printf("Last invalid:     %s\n", invalid)
	}

	store, err := newLedgerStore(cfg)
	if err != nil {
		return err
	}
	rec, err := store.Load()
	if err != nil {
		return err
	}
	if rec.Present {
		fmt.Printf("Last installed:   %s\n", rec.ImageID)
	} else {
		fmt.Printf("Last installed:   (none)\n")
	}

	if hist := newHistory(cfg); hist != nil {
		defer hist.Close()
		if last, err := hist.LastInstalled(); err == nil && last != nil {
			fmt.Printf("Last success:     %s (%s) at %s\n", last.Version, last.ImageID, last.CreatedAt)
		}
	}

	return nil
}
