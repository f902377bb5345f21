package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or clear the installed-image ledger",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the recorded installed-image identifier",
	RunE:  runLedgerShow,
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the record, re-arming forced updates for the same image",
	RunE:  runLedgerClear,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)
	ledgerCmd.AddCommand(ledgerClearCmd)
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := newLedgerStore(cfg)
	if err != nil {
		return err
	}

	rec, err := store.Load()
	if err != nil {
		return err
	}
	if !rec.Present {
		fmt.Println("No installed-image record")
		return nil
	}

	fmt.Println(rec.ImageID)
	return nil
}

func runLedgerClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := newLedgerStore(cfg)
	if err != nil {
		return err
	}

	if err := store.Clear(); err != nil {
		return err
	}

	fmt.Println("Installed-image record cleared")
	return nil
}
