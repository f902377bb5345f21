package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/deviceops/fwagent/pkg/engine"
	"github.com/deviceops/fwagent/pkg/errors"
	"github.com/deviceops/fwagent/pkg/fetch"
	"github.com/deviceops/fwagent/pkg/history"
	"github.com/deviceops/fwagent/pkg/ledger"
	"github.com/deviceops/fwagent/pkg/manifest"
	"github.com/deviceops/fwagent/pkg/transfer"
	"github.com/superfly/fsm"
)

// maxManifestSize bounds the manifest payload read into memory.
const maxManifestSize = 1 << 20

// Machine holds dependencies for FSM transitions
type Machine struct {
	fetcher    fetch.Fetcher
	xfer       *transfer.Engine
	store      *ledger.Store
	hist       *history.Repository
	progress   transfer.ProgressFunc
	maxRetries int
}

// NewMachine creates a new FSM machine with dependencies. hist may be nil
// to disable attempt history.
func NewMachine(
	fetcher fetch.Fetcher,
	xfer *transfer.Engine,
	store *ledger.Store,
	hist *history.Repository,
	maxRetries int,
) *Machine {
	return &Machine{
		fetcher:    fetcher,
		xfer:       xfer,
		store:      store,
		hist:       hist,
		maxRetries: maxRetries,
	}
}

// OnProgress registers a transfer progress callback.
func (m *Machine) OnProgress(cb transfer.ProgressFunc) {
	m.progress = cb
}

// handleEvaluate fetches and evaluates the manifest. Every failure along
// the way is "no update", never a workflow failure.
func (m *Machine) handleEvaluate(ctx context.Context, req *fsm.Request[UpdateRequest, UpdateResponse]) (*fsm.Response[UpdateResponse], error) {
	slog.Info("fsm_state_evaluate", "manifest_url", req.Msg.ManifestURL, "device", req.Msg.Device)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "manifest_url", req.Msg.ManifestURL, "max_retries", m.maxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &UpdateResponse{}
	}

	// The ledger is re-read on every run so a resumed workflow sees records
	// committed before the interruption.
	rec, err := m.store.Load()
	if err != nil {
		slog.Error("ledger_load_failed", "error", err)
		return nil, fsm.Abort(errors.Wrap(err, "failed to load ledger"))
	}

	decision, ok := m.evaluate(ctx, *req.Msg, rec.ImageID)
	if !ok || !decision.Available {
		resp.Available = false
		resp.Status = StatusNoUpdate
		resp.Outcome = int(engine.OutcomeNoop)
		return fsm.NewResponse(resp), nil
	}

	resp.Available = true
	resp.Forced = decision.Forced
	resp.Version = decision.Version
	resp.URL = decision.URL
	resp.ImageID = decision.ImageID

	slog.Info("update_selected", "version", decision.Version, "url", decision.URL, "forced", decision.Forced)
	return fsm.NewResponse(resp), nil
}

func (m *Machine) evaluate(ctx context.Context, req UpdateRequest, lastInstalled string) (manifest.Decision, bool) {
	resp, err := fetch.Resolve(ctx, m.fetcher, req.ManifestURL)
	if err != nil {
		slog.Warn("manifest_fetch_failed", "error", err)
		return manifest.Decision{}, false
	}
	defer resp.Close()

	if resp.StatusCode != 200 {
		slog.Warn("manifest_server_error", "status", resp.StatusCode)
		return manifest.Decision{}, false
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		slog.Warn("manifest_read_failed", "error", err)
		return manifest.Decision{}, false
	}

	entries, err := manifest.Parse(payload)
	if err != nil {
		slog.Warn("manifest_invalid", "error", err)
		return manifest.Decision{}, false
	}

	return manifest.Evaluate(entries, req.Device, req.CurrentVersion, lastInstalled), true
}

// handleTransfer downloads the image and flashes it to the inactive slot
func (m *Machine) handleTransfer(ctx context.Context, req *fsm.Request[UpdateRequest, UpdateResponse]) (*fsm.Response[UpdateResponse], error) {
	slog.Info("fsm_state_transfer", "url", reqURL(req))

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "url", reqURL(req), "max_retries", m.maxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if !resp.Available {
		return fsm.NewResponse(resp), nil
	}

	imageID, err := m.xfer.Transfer(ctx, resp.URL, m.progress)
	if err != nil {
		outcome := engine.OutcomeForTransferError(err)
		resp.Outcome = int(outcome)
		resp.ErrorMessage = err.Error()
		m.recordAttempt(resp)
		slog.Error("transfer_failed", "url", resp.URL, "outcome", resp.Outcome, "error", err)
		return nil, fsm.Abort(errors.Wrap(err, "transfer failed"))
	}

	resp.ImageID = imageID
	slog.Info("transfer_complete", "image_id", imageID)
	return fsm.NewResponse(resp), nil
}

// handleRecord commits the installed-image ledger record. The commit must
// land before the caller reboots, so a failure here fails the workflow.
func (m *Machine) handleRecord(ctx context.Context, req *fsm.Request[UpdateRequest, UpdateResponse]) (*fsm.Response[UpdateResponse], error) {
	slog.Info("fsm_state_record", "image_id", respImageID(req))

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "max_retries", m.maxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if !resp.Available {
		return fsm.NewResponse(resp), nil
	}

	if err := m.store.Save(resp.ImageID); err != nil {
		resp.Outcome = int(engine.OutcomePersistFailed)
		resp.ErrorMessage = err.Error()
		m.recordAttempt(resp)
		slog.Error("ledger_commit_failed_after_flash", "image_id", resp.ImageID, "error", err)
		return nil, fsm.Abort(errors.Wrap(err, "ledger commit failed"))
	}

	resp.Outcome = int(engine.OutcomeSuccess)
	m.recordAttempt(resp)

	return fsm.NewResponse(resp), nil
}

// handleComplete marks the workflow finished
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[UpdateRequest, UpdateResponse]) (*fsm.Response[UpdateResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		resp = &UpdateResponse{Status: StatusNoUpdate}
	}

	if resp.Available {
		resp.Status = StatusUpdated
	}

	slog.Info("fsm_complete", "status", resp.Status, "outcome", resp.Outcome, "image_id", resp.ImageID)
	return fsm.NewResponse(resp), nil
}

func (m *Machine) recordAttempt(resp *UpdateResponse) {
	if m.hist == nil {
		return
	}
	attempt := &history.Attempt{
		ImageID:      resp.ImageID,
		Version:      resp.Version,
		URL:          resp.URL,
		Forced:       resp.Forced,
		Outcome:      resp.Outcome,
		ErrorMessage: resp.ErrorMessage,
	}
	if err := m.hist.Record(attempt); err != nil {
		slog.Warn("history_record_failed", "error", err)
	}
}

func reqURL(req *fsm.Request[UpdateRequest, UpdateResponse]) string {
	if req.W.Msg != nil {
		return req.W.Msg.URL
	}
	return ""
}

func respImageID(req *fsm.Request[UpdateRequest, UpdateResponse]) string {
	if req.W.Msg != nil {
		return req.W.Msg.ImageID
	}
	return ""
}
