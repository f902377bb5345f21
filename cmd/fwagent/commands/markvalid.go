package commands

import (
	"fmt"

	"github.com/deviceops/fwagent/pkg/partition"
	"github.com/spf13/cobra"
)

var markValidCmd = &cobra.Command{
	Use:   "mark-valid",
	Short: "Confirm the running image, cancelling the pending bootloader rollback",
	RunE:  runMarkValid,
}

func init() {
	rootCmd.AddCommand(markValidCmd)
}

func runMarkValid(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := ensureDirectories(cfg.StatePath); err != nil {
		return err
	}

	dev, err := newDevice(cfg)
	if err != nil {
		return err
	}

	ctrl := partition.NewController(dev)

	changed, err := ctrl.MarkValid()
	if err != nil {
		return err
	}
	if changed {
		fmt.Printf("Running image on %s confirmed valid\n", ctrl.DescribeRunning())
	} else {
		fmt.Printf("Running image on %s needed no confirmation\n", ctrl.DescribeRunning())
	}

	return nil
}
