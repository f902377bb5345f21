// Package manifest parses the update server's JSON manifest and decides
// whether a firmware update applies to this device.
package manifest

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalid reports a malformed manifest payload: invalid JSON, an
// "updater" value that is not an array, or an entry missing a required
// field. Callers treat it as "no update available", never as fatal.
var ErrInvalid = errors.New("manifest: invalid payload")

// Entry is one firmware offer from the manifest's "updater" array.
// Device is an optional filter key; an empty Device matches every device.
type Entry struct {
	Device  string `json:"device"`
	Version string `json:"version"`
	Force   bool   `json:"force"`
	URL     string `json:"url"`
}

type document struct {
	Updater []Entry `json:"updater"`
}

// Parse decodes and validates a manifest payload. A payload without an
// "updater" key yields zero entries; entries missing version or url make
// the whole manifest invalid (validation happens here, not mid-evaluation).
func Parse(payload []byte) ([]Entry, error) {
	var doc document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, ErrInvalid
	}
	for _, e := range doc.Updater {
		if e.Version == "" || e.URL == "" {
			return nil, ErrInvalid
		}
	}
	return doc.Updater, nil
}

// ImageIdentifier derives the stable image identifier from a firmware URL:
// the last path segment with any query string stripped. Returns "" when the
// URL has no usable segment.
func ImageIdentifier(url string) string {
	slash := strings.LastIndex(url, "/")
	if slash < 0 || slash >= len(url)-1 {
		return ""
	}
	name := url[slash+1:]
	if q := strings.Index(name, "?"); q > 0 {
		name = name[:q]
	}
	return name
}
