package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "fwagent",
	Short: "Firmware update agent for dual-partition devices",
	Long:  `Checks a manifest server for firmware updates, flashes the inactive partition, and manages boot selection and rollback.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("manifest-url", "", "Update manifest URL")
	rootCmd.PersistentFlags().String("device", "", "Device identifier matched against manifest entries")
	rootCmd.PersistentFlags().String("current-version", "0.0.0", "Currently running firmware version")
	rootCmd.PersistentFlags().Duration("check-interval", time.Hour, "Periodic check interval for the run command")
	rootCmd.PersistentFlags().Duration("http-timeout", 60*time.Second, "HTTP request timeout")
	rootCmd.PersistentFlags().Bool("insecure-skip-verify", false, "Skip TLS certificate verification")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region for s3:// image URLs")
	rootCmd.PersistentFlags().String("slot-a-label", "ota_0", "Label of slot A")
	rootCmd.PersistentFlags().String("slot-a-path", "/var/lib/fwagent/slots/ota_0.img", "Image path of slot A")
	rootCmd.PersistentFlags().String("slot-b-label", "ota_1", "Label of slot B")
	rootCmd.PersistentFlags().String("slot-b-path", "/var/lib/fwagent/slots/ota_1.img", "Image path of slot B")
	rootCmd.PersistentFlags().Int64("slot-capacity", 0, "Slot capacity in bytes (0 disables the check)")
	rootCmd.PersistentFlags().String("state-path", "/var/lib/fwagent/boot-state.json", "Boot state file path")
	rootCmd.PersistentFlags().String("ledger-path", "/var/lib/fwagent/ledger.bin", "Installed-image ledger path")
	rootCmd.PersistentFlags().String("history-path", "/var/lib/fwagent/history.db", "Update history SQLite path")
	rootCmd.PersistentFlags().String("restart-command", "/sbin/reboot", "Command executed to restart the device")
	rootCmd.PersistentFlags().String("fsm-db-path", "/var/lib/fwagent/fsm.db", "FSM BoltDB path")
	rootCmd.PersistentFlags().Int("fsm-max-retries", 5, "Max retries per FSM state")

	viper.BindPFlag("manifest-url", rootCmd.PersistentFlags().Lookup("manifest-url"))
	viper.BindPFlag("device", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("current-version", rootCmd.PersistentFlags().Lookup("current-version"))
	viper.BindPFlag("check-interval", rootCmd.PersistentFlags().Lookup("check-interval"))
	viper.BindPFlag("http-timeout", rootCmd.PersistentFlags().Lookup("http-timeout"))
	viper.BindPFlag("insecure-skip-verify", rootCmd.PersistentFlags().Lookup("insecure-skip-verify"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("slot-a-label", rootCmd.PersistentFlags().Lookup("slot-a-label"))
	viper.BindPFlag("slot-a-path", rootCmd.PersistentFlags().Lookup("slot-a-path"))
	viper.BindPFlag("slot-b-label", rootCmd.PersistentFlags().Lookup("slot-b-label"))
	viper.BindPFlag("slot-b-path", rootCmd.PersistentFlags().Lookup("slot-b-path"))
	viper.BindPFlag("slot-capacity", rootCmd.PersistentFlags().Lookup("slot-capacity"))
	viper.BindPFlag("state-path", rootCmd.PersistentFlags().Lookup("state-path"))
	viper.BindPFlag("ledger-path", rootCmd.PersistentFlags().Lookup("ledger-path"))
	viper.BindPFlag("history-path", rootCmd.PersistentFlags().Lookup("history-path"))
	viper.BindPFlag("restart-command", rootCmd.PersistentFlags().Lookup("restart-command"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("fsm-max-retries", rootCmd.PersistentFlags().Lookup("fsm-max-retries"))
}
