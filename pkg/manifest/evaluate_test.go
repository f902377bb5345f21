package manifest

import "testing"

func TestEvaluate_LexicographicOrdering(t *testing.T) {
	tests := []struct {
		name      string
		versions  []string
		current   string
		available bool
		chosen    string
	}{
		{
			name:      "first eligible wins",
			versions:  []string{"1.0.0", "0.9.9"},
			current:   "0.9.0",
			available: true,
			chosen:    "1.0.0",
		},
		{
			name:     "no entry strictly greater",
			versions: []string{"1.0.0", "0.9.9"},
			current:  "1.0.0",
		},
		{
			name:      "lexicographic not semantic",
			versions:  []string{"2.0.0"},
			current:   "10.0.0",
			available: true,
			chosen:    "2.0.0",
		},
		{
			name:     "semantic newer but lexicographically smaller",
			versions: []string{"10.0.0"},
			current:  "2.0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entries []Entry
			for _, v := range tt.versions {
				entries = append(entries, Entry{Version: v, URL: "http://h/fw-" + v + ".bin"})
			}
			d := Evaluate(entries, "dev-1", tt.current, "")
			if d.Available != tt.available {
				t.Fatalf("available = %v, want %v", d.Available, tt.available)
			}
			if tt.available && d.Version != tt.chosen {
				t.Errorf("chosen version = %q, want %q", d.Version, tt.chosen)
			}
		})
	}
}

func TestEvaluate_DeviceFilter(t *testing.T) {
	entries := []Entry{
		{Device: "other-device", Version: "9.9.9", URL: "http://h/other.bin"},
		{Device: "dev-1", Version: "2.0.0", URL: "http://h/mine.bin"},
	}

	d := Evaluate(entries, "dev-1", "1.0.0", "")
	if !d.Available || d.URL != "http://h/mine.bin" {
		t.Fatalf("expected dev-1 entry, got %+v", d)
	}

	// Identity mismatch must never produce a false "available".
	d = Evaluate(entries[:1], "dev-1", "1.0.0", "")
	if d.Available {
		t.Errorf("entry for another device reported available: %+v", d)
	}
}

func TestEvaluate_UntargetedEntryMatchesAnyDevice(t *testing.T) {
	entries := []Entry{{Version: "2.0.0", URL: "http://h/fw.bin"}}
	d := Evaluate(entries, "whatever", "1.0.0", "")
	if !d.Available {
		t.Error("untargeted entry should match any device")
	}
}

func TestEvaluate_ForcedWinsRegardlessOfVersion(t *testing.T) {
	entries := []Entry{{Version: "0.0.1", Force: true, URL: "http://h/fw-0.0.1.bin"}}
	d := Evaluate(entries, "dev-1", "9.9.9", "")
	if !d.Available || !d.Forced {
		t.Fatalf("forced entry not chosen: %+v", d)
	}
	if d.ImageID != "fw-0.0.1.bin" {
		t.Errorf("image id = %q", d.ImageID)
	}
}

func TestEvaluate_ForcedReinstallSuppressed(t *testing.T) {
	entries := []Entry{{Version: "1.2.3", Force: true, URL: "http://h/fw-1.2.3.bin"}}

	// Same identifier as the ledger record: suppressed.
	d := Evaluate(entries, "dev-1", "1.0.0", "fw-1.2.3.bin")
	if d.Available {
		t.Fatalf("forced reinstall of same image reported available: %+v", d)
	}

	// Suppressed again on repeat evaluation (idempotent until the record changes).
	d = Evaluate(entries, "dev-1", "1.0.0", "fw-1.2.3.bin")
	if d.Available {
		t.Fatal("forced reinstall suppression not stable across evaluations")
	}

	// Different stored identifier: eligible again.
	d = Evaluate(entries, "dev-1", "1.0.0", "fw-0.0.9.bin")
	if !d.Available || !d.Forced {
		t.Fatalf("forced entry with new image not chosen: %+v", d)
	}

	// Empty ledger record never suppresses.
	d = Evaluate(entries, "dev-1", "1.0.0", "")
	if !d.Available {
		t.Fatal("forced entry suppressed with empty ledger record")
	}
}

func TestEvaluate_ForcedSkipContinuesToNextEntry(t *testing.T) {
	entries := []Entry{
		{Version: "1.0.0", Force: true, URL: "http://h/fw-1.0.0.bin"},
		{Version: "2.0.0", URL: "http://h/fw-2.0.0.bin"},
	}
	d := Evaluate(entries, "dev-1", "1.5.0", "fw-1.0.0.bin")
	if !d.Available || d.Forced || d.Version != "2.0.0" {
		t.Fatalf("expected fall-through to next entry, got %+v", d)
	}
}
