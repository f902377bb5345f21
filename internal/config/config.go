package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Update source
	ManifestURL    string `mapstructure:"manifest-url"`
	Device         string `mapstructure:"device"`
	CurrentVersion string `mapstructure:"current-version"`

	// Cadence
	CheckInterval time.Duration `mapstructure:"check-interval"`

	// HTTP transport
	HTTPTimeout        time.Duration `mapstructure:"http-timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure-skip-verify"`

	// S3 transport (for s3:// image URLs)
	S3Region string `mapstructure:"s3-region"`

	// Slot layout
	SlotALabel   string `mapstructure:"slot-a-label"`
	SlotAPath    string `mapstructure:"slot-a-path"`
	SlotBLabel   string `mapstructure:"slot-b-label"`
	SlotBPath    string `mapstructure:"slot-b-path"`
	SlotCapacity int64  `mapstructure:"slot-capacity"`

	// Persistent state paths
	StatePath   string `mapstructure:"state-path"`
	LedgerPath  string `mapstructure:"ledger-path"`
	HistoryPath string `mapstructure:"history-path"`

	// Restart
	RestartCommand string `mapstructure:"restart-command"`

	// FSM configuration
	FSMDBPath     string `mapstructure:"fsm-db-path"`
	FSMMaxRetries int    `mapstructure:"fsm-max-retries"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("manifest-url", "")
	viper.SetDefault("device", "")
	viper.SetDefault("current-version", "0.0.0")
	viper.SetDefault("check-interval", time.Hour)
	viper.SetDefault("http-timeout", 60*time.Second)
	viper.SetDefault("insecure-skip-verify", false)
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("slot-a-label", "ota_0")
	viper.SetDefault("slot-a-path", "/var/lib/fwagent/slots/ota_0.img")
	viper.SetDefault("slot-b-label", "ota_1")
	viper.SetDefault("slot-b-path", "/var/lib/fwagent/slots/ota_1.img")
	viper.SetDefault("slot-capacity", int64(0))
	viper.SetDefault("state-path", "/var/lib/fwagent/boot-state.json")
	viper.SetDefault("ledger-path", "/var/lib/fwagent/ledger.bin")
	viper.SetDefault("history-path", "/var/lib/fwagent/history.db")
	viper.SetDefault("restart-command", "/sbin/reboot")
	viper.SetDefault("fsm-db-path", "/var/lib/fwagent/fsm.db")
	viper.SetDefault("fsm-max-retries", 5)

	// Environment variables (will be FWAGENT_MANIFEST_URL, etc.)
	viper.SetEnvPrefix("FWAGENT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/fwagent")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.ManifestURL == "" {
		return fmt.Errorf("manifest-url cannot be empty")
	}
	if c.Device == "" {
		return fmt.Errorf("device cannot be empty")
	}
	if c.CurrentVersion == "" {
		return fmt.Errorf("current-version cannot be empty")
	}
	if c.SlotALabel == "" || c.SlotBLabel == "" {
		return fmt.Errorf("slot labels cannot be empty")
	}
	if c.SlotALabel == c.SlotBLabel {
		return fmt.Errorf("slot labels must differ")
	}
	if c.SlotAPath == "" || c.SlotBPath == "" {
		return fmt.Errorf("slot paths cannot be empty")
	}
	if c.SlotCapacity < 0 {
		return fmt.Errorf("slot-capacity must be non-negative")
	}
	if c.StatePath == "" {
		return fmt.Errorf("state-path cannot be empty")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("ledger-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}
