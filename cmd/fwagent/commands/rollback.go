package commands

import (
	"fmt"

	"github.com/deviceops/fwagent/pkg/partition"
	"github.com/spf13/cobra"
)

var rollbackRestart bool

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Switch the boot partition back to the previous image",
	RunE:  runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().BoolVar(&rollbackRestart, "restart", false, "Restart the device after switching")
}

func runRollback(cmd *cobra.Command, args []string) error {
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

	outcome, err := ctrl.Rollback()
	if err != nil {
		return err
	}
	if outcome != partition.RollbackSwitched {
		fmt.Println("No partition to roll back to")
		return nil
	}

	fmt.Printf("Boot partition switched to %s\n", ctrl.DescribeNext())

	if rollbackRestart {
		dev.Restart()
	}
	fmt.Println("Restart the device for the rollback to take effect")

	return nil
}
