// Package transfer streams a firmware binary into the inactive partition.
// It is the only component that mutates flash contents; partition switching
// and rebooting belong to its callers.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/deviceops/fwagent/pkg/fetch"
	"github.com/deviceops/fwagent/pkg/manifest"
)

// DefaultChunkSize bounds each flash write.
const DefaultChunkSize = 512

var (
	// ErrDownloadFailed reports a fetch error or a non-200 response.
	ErrDownloadFailed = errors.New("transfer: download failed")
	// ErrInvalidContentLength reports a missing or non-positive length.
	ErrInvalidContentLength = errors.New("transfer: invalid content length")
	// ErrInsufficientSpace reports that the inactive partition cannot hold
	// the image; detected before any byte is written.
	ErrInsufficientSpace = errors.New("transfer: insufficient space")
	// ErrTransferIncomplete reports a stream that ended short of the
	// declared length; the partial image is never finalized.
	ErrTransferIncomplete = errors.New("transfer: stream ended before declared length")
	// ErrFlashWriteFailed reports a chunk write rejected by the platform.
	ErrFlashWriteFailed = errors.New("transfer: flash write failed")
	// ErrFlashFinalizeFailed reports a failed finalize after a full write.
	ErrFlashFinalizeFailed = errors.New("transfer: flash finalize failed")
)

// ProgressFunc receives progress updates during a transfer.
type ProgressFunc func(percent int, written, total int64)

// Flash is the subset of the platform used for a write session.
type Flash interface {
	BeginWrite(size int64) error
	WriteChunk(data []byte) error
	FinalizeWrite(verify bool) error
}

// Engine streams firmware binaries to flash.
type Engine struct {
	fetcher   fetch.Fetcher
	flash     Flash
	chunkSize int
}

// NewEngine creates a transfer engine with the default chunk size.
func NewEngine(fetcher fetch.Fetcher, flash Flash) *Engine {
	return &Engine{fetcher: fetcher, flash: flash, chunkSize: DefaultChunkSize}
}

// Transfer downloads url into the inactive partition and returns the image
// identifier derived from the pre-redirect url. onProgress, when non-nil,
// is invoked only when the integer percentage changes (monotonic, at most
// 101 emissions); with a nil callback progress is logged every 10%.
//
// FinalizeWrite is requested only when the byte count matches the declared
// content length exactly. The engine never reboots.
func (e *Engine) Transfer(ctx context.Context, url string, onProgress ProgressFunc) (string, error) {
	slog.Info("transfer_start", "url", url)

	resp, err := fetch.Resolve(ctx, e.fetcher, url)
	if err != nil {
		if errors.Is(err, fetch.ErrTooManyRedirects) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s", ErrDownloadFailed, err)
	}
	defer resp.Close()

	if resp.StatusCode != 200 {
		slog.Error("download_rejected", "url", url, "status", resp.StatusCode)
		return "", fmt.Errorf("%w: server returned %d", ErrDownloadFailed, resp.StatusCode)
	}

	total := resp.ContentLength
	if total <= 0 {
		slog.Error("content_length_missing", "url", url, "content_length", total)
		return "", ErrInvalidContentLength
	}

	if err := e.flash.BeginWrite(total); err != nil {
		slog.Error("write_session_rejected", "size", total, "error", err)
		return "", fmt.Errorf("%w: %s", ErrInsufficientSpace, err)
	}

	slog.Info("flashing_image", "url", url, "size", total)

	reader := io.LimitReader(resp.Body, total)
	buf := make([]byte, e.chunkSize)
	var written int64
	lastPercent := -1

	for written < total {
		n, rerr := reader.Read(buf)
		if n > 0 {
			if werr := e.flash.WriteChunk(buf[:n]); werr != nil {
				return "", fmt.Errorf("%w: %s", ErrFlashWriteFailed, werr)
			}
			written += int64(n)

			percent := int(written * 100 / total)
			if percent != lastPercent {
				lastPercent = percent
				if onProgress != nil {
					onProgress(percent, written, total)
				} else if percent%10 == 0 {
					slog.Info("transfer_progress", "percent", percent, "written", written, "total", total)
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			slog.Error("stream_read_failed", "written", written, "total", total, "error", rerr)
			return "", fmt.Errorf("%w: %s", ErrTransferIncomplete, rerr)
		}
	}

	if written != total {
		slog.Error("stream_ended_short", "written", written, "total", total)
		return "", ErrTransferIncomplete
	}

	if err := e.flash.FinalizeWrite(true); err != nil {
		slog.Error("finalize_failed", "error", err)
		return "", fmt.Errorf("%w: %s", ErrFlashFinalizeFailed, err)
	}

	imageID := manifest.ImageIdentifier(url)
	slog.Info("transfer_complete", "image_id", imageID, "bytes", written)
	return imageID, nil
}
