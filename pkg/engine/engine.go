// Package engine composes manifest evaluation, transfer, the installed-image
// ledger, and the partition controller into the agent's public operations.
//
// The engine is single-threaded by design: every operation blocks its caller
// for its whole duration, holds no locks, and assumes single-caller
// discipline. Periodic checking is driven by the caller invoking Tick from
// its own run loop. The engine never restarts the device; a success outcome
// tells the caller a restart is due.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/deviceops/fwagent/pkg/fetch"
	"github.com/deviceops/fwagent/pkg/history"
	"github.com/deviceops/fwagent/pkg/ledger"
	"github.com/deviceops/fwagent/pkg/manifest"
	"github.com/deviceops/fwagent/pkg/partition"
	"github.com/deviceops/fwagent/pkg/platform"
	"github.com/deviceops/fwagent/pkg/transfer"
)

// Outcome is the result of a public operation. The numbering is stable;
// callers key restart and alerting decisions off it.
type Outcome int

const (
	// OutcomeSuccess: the update or rollback was applied; the caller
	// should restart the device for it to take effect.
	OutcomeSuccess Outcome = 1
	// OutcomeNoop: nothing to do (no update, no rollback target).
	OutcomeNoop Outcome = 0
	// OutcomeBootSetFailed: the boot-partition switch failed; device
	// state must not be assumed consistent.
	OutcomeBootSetFailed Outcome = -2
	// OutcomeDownloadFailed: network failure, non-200, redirect
	// exhaustion, bad content length, or a stream that ended short.
	OutcomeDownloadFailed Outcome = -3
	// OutcomeInsufficientSpace: the image does not fit the inactive
	// partition; nothing was written.
	OutcomeInsufficientSpace Outcome = -4
	// OutcomeFlashFailed: a flash write or finalize failed.
	OutcomeFlashFailed Outcome = -5
	// OutcomePersistFailed: the image flashed but the ledger record did
	// not commit; the caller must not restart, or the next forced check
	// would reinstall the same image.
	OutcomePersistFailed Outcome = -6
)

// maxManifestSize bounds the manifest payload read into memory.
const maxManifestSize = 1 << 20

// Config holds the agent's identity and cadence.
type Config struct {
	ManifestURL    string
	DeviceID       string
	CurrentVersion string
	// CheckInterval is the Tick cadence; zero disables periodic checks.
	CheckInterval time.Duration
}

// Agent is the update orchestrator.
type Agent struct {
	cfg      Config
	fetcher  fetch.Fetcher
	store    *ledger.Store
	ctrl     *partition.Controller
	xfer     *transfer.Engine
	hist     *history.Repository
	progress transfer.ProgressFunc

	decision      manifest.Decision
	lastInstalled string
	lastCheck     int64
}

// New creates an Agent. The ledger is read once here; afterwards the
// in-memory copy tracks saves. hist may be nil to disable attempt history.
func New(cfg Config, fetcher fetch.Fetcher, dev platform.Device, store *ledger.Store, hist *history.Repository) (*Agent, error) {
	rec, err := store.Load()
	if err != nil {
		return nil, err
	}
	if rec.Present {
		slog.Info("last_installed_image", "image_id", rec.ImageID)
	}

	return &Agent{
		cfg:           cfg,
		fetcher:       fetcher,
		store:         store,
		ctrl:          partition.NewController(dev),
		xfer:          transfer.NewEngine(fetcher, dev),
		hist:          hist,
		lastInstalled: rec.ImageID,
	}, nil
}

// OnProgress registers a transfer progress callback.
func (a *Agent) OnProgress(cb transfer.ProgressFunc) {
	a.progress = cb
}

// Decision returns the most recent cached update decision.
func (a *Agent) Decision() manifest.Decision {
	return a.decision
}

// Controller exposes the partition controller for status inspection.
func (a *Agent) Controller() *partition.Controller {
	return a.ctrl
}

// CheckOnly evaluates the manifest and reports whether an update is
// available, without downloading anything. Every failure along the way
// (fetch error, non-200, malformed manifest) is "no update", never fatal.
func (a *Agent) CheckOnly(ctx context.Context) bool {
	slog.Info("checking_for_updates", "manifest_url", a.cfg.ManifestURL, "current_version", a.cfg.CurrentVersion)
	a.decision = manifest.Decision{}

	resp, err := fetch.Resolve(ctx, a.fetcher, a.cfg.ManifestURL)
	if err != nil {
		slog.Warn("manifest_fetch_failed", "error", err)
		return false
	}
	defer resp.Close()

	if resp.StatusCode != 200 {
		slog.Warn("manifest_server_error", "status", resp.StatusCode)
		return false
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		slog.Warn("manifest_read_failed", "error", err)
		return false
	}

	entries, err := manifest.Parse(payload)
	if err != nil {
		slog.Warn("manifest_invalid", "error", err)
		return false
	}

	a.decision = manifest.Evaluate(entries, a.cfg.DeviceID, a.cfg.CurrentVersion, a.lastInstalled)
	return a.decision.Available
}

// UpdateNow installs the cached decision when one is available, otherwise
// re-evaluates first. Returns OutcomeNoop when there is nothing to install.
func (a *Agent) UpdateNow(ctx context.Context) Outcome {
	if a.decision.Available && a.decision.URL != "" {
		return a.install(ctx)
	}
	if a.CheckOnly(ctx) {
		return a.install(ctx)
	}
	slog.Info("no_update_available")
	return OutcomeNoop
}

// CheckAndUpdate re-evaluates the manifest and installs when an update is
// available.
func (a *Agent) CheckAndUpdate(ctx context.Context) Outcome {
	if a.CheckOnly(ctx) {
		return a.install(ctx)
	}
	return OutcomeNoop
}

// ForceRecheck drops the cached decision and runs CheckAndUpdate.
func (a *Agent) ForceRecheck(ctx context.Context) Outcome {
	slog.Info("force_recheck")
	a.decision = manifest.Decision{}
	return a.CheckAndUpdate(ctx)
}

// Tick runs CheckAndUpdate when the configured interval has elapsed since
// the last check. The caller invokes it from its own run loop with a
// millisecond clock.
func (a *Agent) Tick(ctx context.Context, nowMillis int64) Outcome {
	interval := a.cfg.CheckInterval.Milliseconds()
	if interval <= 0 || nowMillis-a.lastCheck < interval {
		return OutcomeNoop
	}
	a.lastCheck = nowMillis
	return a.CheckAndUpdate(ctx)
}

// Rollback switches the boot partition back to the previous image. A
// missing rollback target is OutcomeNoop, not an error.
func (a *Agent) Rollback() Outcome {
	outcome, err := a.ctrl.Rollback()
	if err != nil {
		return OutcomeBootSetFailed
	}
	if outcome != partition.RollbackSwitched {
		return OutcomeNoop
	}
	return OutcomeSuccess
}

// MarkValid confirms the running image; safe to call on every startup.
func (a *Agent) MarkValid() (bool, error) {
	return a.ctrl.MarkValid()
}

func (a *Agent) install(ctx context.Context) Outcome {
	d := a.decision
	slog.Info("installing_update", "version", d.Version, "url", d.URL, "forced", d.Forced)

	imageID, err := a.xfer.Transfer(ctx, d.URL, a.progress)
	outcome := OutcomeForTransferError(err)

	if outcome == OutcomeSuccess {
		// The ledger commit is the sole defense against forced reinstall
		// loops; it must land before the caller reboots.
		if serr := a.store.Save(imageID); serr != nil {
			slog.Error("ledger_commit_failed_after_flash", "image_id", imageID, "error", serr)
			err = serr
			outcome = OutcomePersistFailed
		} else {
			a.lastInstalled = imageID
			a.decision = manifest.Decision{}
		}
	}

	a.recordAttempt(d, imageID, outcome, err)

	if outcome == OutcomeSuccess {
		slog.Info("update_installed", "image_id", imageID, "version", d.Version)
	}
	return outcome
}

// OutcomeForTransferError maps a transfer error to its stable outcome code.
func OutcomeForTransferError(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, transfer.ErrInsufficientSpace):
		return OutcomeInsufficientSpace
	case errors.Is(err, transfer.ErrFlashWriteFailed),
		errors.Is(err, transfer.ErrFlashFinalizeFailed):
		return OutcomeFlashFailed
	default:
		// Download failure, bad content length, short stream, redirect
		// exhaustion: all transient-or-integrity download causes.
		return OutcomeDownloadFailed
	}
}

func (a *Agent) recordAttempt(d manifest.Decision, imageID string, outcome Outcome, err error) {
	if a.hist == nil {
		return
	}
	if imageID == "" {
		imageID = d.ImageID
	}
	attempt := &history.Attempt{
		ImageID: imageID,
		Version: d.Version,
		URL:     d.URL,
		Forced:  d.Forced,
		Outcome: int(outcome),
	}
	if err != nil {
		attempt.ErrorMessage = err.Error()
	}
	if herr := a.hist.Record(attempt); herr != nil {
		slog.Warn("history_record_failed", "error", herr)
	}
}
