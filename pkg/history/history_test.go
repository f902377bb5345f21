package history

import (
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_RecordAndList(t *testing.T) {
	repo := newTestRepo(t)

	a := &Attempt{
		ImageID: "fw-2.0.0.bin",
		Version: "2.0.0",
		URL:     "http://h/fw-2.0.0.bin",
		Outcome: 1,
	}
	if err := repo.Record(a); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if a.ID == 0 {
		t.Error("attempt ID not populated")
	}

	repo.Record(&Attempt{
		ImageID:      "fw-2.1.0.bin",
		Version:      "2.1.0",
		URL:          "http://h/fw-2.1.0.bin",
		Outcome:      -3,
		ErrorMessage: "download failed",
	})

	attempts, err := repo.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].ImageID != "fw-2.1.0.bin" {
		t.Errorf("expected most recent first, got %s", attempts[0].ImageID)
	}
	if attempts[0].ErrorMessage != "download failed" {
		t.Errorf("error message = %q", attempts[0].ErrorMessage)
	}
}

func TestRepository_LastInstalled(t *testing.T) {
	repo := newTestRepo(t)

	last, err := repo.LastInstalled()
	if err != nil {
		t.Fatalf("last installed failed: %v", err)
	}
	if last != nil {
		t.Fatalf("expected nil on empty history, got %+v", last)
	}

	repo.Record(&Attempt{ImageID: "fw-1.0.0.bin", Version: "1.0.0", URL: "u", Outcome: 1})
	repo.Record(&Attempt{ImageID: "fw-2.0.0.bin", Version: "2.0.0", URL: "u", Outcome: -3})
	repo.Record(&Attempt{ImageID: "fw-1.5.0.bin", Version: "1.5.0", URL: "u", Outcome: 1, Forced: true})

	last, err = repo.LastInstalled()
	if err != nil {
		t.Fatalf("last installed failed: %v", err)
	}
	if last == nil || last.ImageID != "fw-1.5.0.bin" || !last.Forced {
		t.Errorf("last installed = %+v", last)
	}
}
