package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/deviceops/fwagent/internal/config"
	"github.com/deviceops/fwagent/pkg/engine"
	"github.com/deviceops/fwagent/pkg/errors"
	"github.com/deviceops/fwagent/pkg/fetch"
	"github.com/deviceops/fwagent/pkg/history"
	"github.com/deviceops/fwagent/pkg/ledger"
	"github.com/deviceops/fwagent/pkg/platform"
)

// loadConfig loads and validates the application configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	return cfg, nil
}

// ensureDirectories creates the parent directories of the given file paths
func ensureDirectories(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return errors.Wrap(err, "failed to create state directory")
		}
	}
	return nil
}

// newFetcher builds the scheme-routing fetcher. S3 is optional: when the
// AWS credential chain cannot be loaded, s3:// URLs fail at fetch time.
func newFetcher(ctx context.Context, cfg *config.Config) fetch.Fetcher {
	httpFetcher := fetch.NewHTTPFetcher(cfg.HTTPTimeout, cfg.InsecureSkipVerify)

	s3Fetcher, err := fetch.NewS3Fetcher(ctx, cfg.S3Region)
	if err != nil {
		slog.Warn("s3_fetcher_unavailable", "error", err)
		s3Fetcher = nil
	}

	return fetch.NewRouter(httpFetcher, s3Fetcher)
}

// newDevice opens the A/B block device from config
func newDevice(cfg *config.Config) (*platform.BlockDevice, error) {
	var restart []string
	if cfg.RestartCommand != "" {
		restart = strings.Fields(cfg.RestartCommand)
	}

	return platform.NewBlockDevice(platform.BlockDeviceConfig{
		SlotA:          platform.SlotConfig{Label: cfg.SlotALabel, Path: cfg.SlotAPath},
		SlotB:          platform.SlotConfig{Label: cfg.SlotBLabel, Path: cfg.SlotBPath},
		Capacity:       cfg.SlotCapacity,
		StatePath:      cfg.StatePath,
		RestartCommand: restart,
	})
}

// newLedgerStore opens the installed-image ledger from config
func newLedgerStore(cfg *config.Config) (*ledger.Store, error) {
	slot, err := ledger.NewFileSlot(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}
	return ledger.NewStore(slot), nil
}

// newHistory opens the attempt history. History is observability only, so
// an open failure degrades to a nil repository instead of failing the
// command.
func newHistory(cfg *config.Config) *history.Repository {
	hist, err := history.NewRepository(cfg.HistoryPath)
	if err != nil {
		slog.Warn("history_unavailable", "error", err)
		return nil
	}
	return hist
}

// newAgent wires the full update agent. The returned device is the same one
// the agent flashes through; callers use it for restarts.
func newAgent(ctx context.Context, cfg *config.Config) (*engine.Agent, *platform.BlockDevice, *history.Repository, error) {
	if err := ensureDirectories(cfg.StatePath, cfg.LedgerPath, cfg.HistoryPath, cfg.SlotAPath, cfg.SlotBPath); err != nil {
		return nil, nil, nil, err
	}

	dev, err := newDevice(cfg)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "device init failed")
	}

	store, err := newLedgerStore(cfg)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "ledger init failed")
	}

	hist := newHistory(cfg)

	agent, err := engine.New(engine.Config{
		ManifestURL:    cfg.ManifestURL,
		DeviceID:       cfg.Device,
		CurrentVersion: cfg.CurrentVersion,
		CheckInterval:  cfg.CheckInterval,
	}, newFetcher(ctx, cfg), dev, store, hist)
	if err != nil {
		if hist != nil {
			hist.Close()
		}
		return nil, nil, nil, errors.Wrap(err, "agent init failed")
	}

	return agent, dev, hist, nil
}
