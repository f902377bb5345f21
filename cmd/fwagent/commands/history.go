package commands

import (
	"fmt"

	"github.com/deviceops/fwagent/pkg/errors"
	"github.com/deviceops/fwagent/pkg/history"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded update attempts",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := ensureDirectories(cfg.HistoryPath); err != nil {
		return err
	}

	hist, err := history.NewRepository(cfg.HistoryPath)
	if err != nil {
		return errors.Wrap(err, "history init failed")
	}
	defer hist.Close()

	attempts, err := hist.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(attempts) == 0 {
		fmt.Println("No update attempts recorded")
		return nil
	}

	fmt.Printf("%-30s %-12s %-8s %-8s %-20s\n", "IMAGE", "VERSION", "FORCED", "OUTCOME", "WHEN")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, a := range attempts {
		forced := "-"
		if a.Forced {
			forced = "yes"
		}
		fmt.Printf("%-30s %-12s %-8s %-8d %-20s\n",
			a.ImageID, a.Version, forced, a.Outcome, a.CreatedAt)
		if a.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", a.ErrorMessage)
		}
	}

	return nil
}
