package manifest

import "log/slog"

// Decision is the outcome of evaluating a manifest against the device's
// identity and current version. Available=true always carries a non-empty
// URL. A Decision is rebuilt from scratch on every evaluation.
type Decision struct {
	Available bool
	Forced    bool
	Version   string
	URL       string
	ImageID   string
}

// Evaluate walks entries in manifest order and returns the first eligible
// offer.
//
// Forced entries win regardless of version ordering, except when their
// derived image identifier equals the non-empty lastInstalledID: that entry
// is skipped so the same forced image is never reinstalled in a loop.
// Non-forced entries win on a strictly greater version under plain
// lexicographic string comparison ("2.0.0" > "10.0.0" under this scheme;
// the ordering is part of the update server contract and must not be
// swapped for semver).
func Evaluate(entries []Entry, device, currentVersion, lastInstalledID string) Decision {
	for _, e := range entries {
		if e.Device != "" && e.Device != device {
			continue
		}

		imageID := ImageIdentifier(e.URL)

		if e.Force {
			if imageID != "" && imageID == lastInstalledID {
				slog.Info("force_update_skipped", "image_id", imageID, "reason", "already_installed")
				continue
			}
			slog.Info("force_update_eligible", "version", e.Version, "image_id", imageID)
			return Decision{
				Available: true,
				Forced:    true,
				Version:   e.Version,
				URL:       e.URL,
				ImageID:   imageID,
			}
		}

		if e.Version > currentVersion {
			slog.Info("update_eligible", "version", e.Version, "current_version", currentVersion)
			return Decision{
				Available: true,
				Version:   e.Version,
				URL:       e.URL,
				ImageID:   imageID,
			}
		}
	}

	slog.Info("no_update_eligible", "current_version", currentVersion, "entry_count", len(entries))
	return Decision{}
}
