package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the manifest for an available update without installing",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	agent, _, hist, err := newAgent(ctx, cfg)
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close()
	}

	if !agent.CheckOnly(ctx) {
		fmt.Println("No update available")
		return nil
	}

	d := agent.Decision()
	if d.Forced {
		fmt.Printf("Forced update available: %s (%s)\n", d.Version, d.ImageID)
	} else {
		fmt.Printf("Update available: %s (%s)\n", d.Version, d.ImageID)
	}
	fmt.Printf("URL: %s\n", d.URL)

	return nil
}
