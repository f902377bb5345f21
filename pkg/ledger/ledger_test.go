package ledger

import (
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	slot, err := NewFileSlot(filepath.Join(t.TempDir(), "ledger.bin"))
	if err != nil {
		t.Fatalf("failed to create slot: %v", err)
	}
	return NewStore(slot)
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("fw-2.0.0.bin"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	rec, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !rec.Present || rec.ImageID != "fw-2.0.0.bin" {
		t.Errorf("record mismatch: %+v", rec)
	}
}

func TestStore_LoadFreshSlot(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if rec.Present {
		t.Errorf("fresh slot reported a record: %+v", rec)
	}
}

func TestStore_OversizedIdentifierLeavesRecordIntact(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("fw-1.0.0.bin"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	long := strings.Repeat("x", MaxIdentifierLen+1)
	if err := store.Save(long); err != ErrIdentifierTooLong {
		t.Fatalf("expected ErrIdentifierTooLong, got %v", err)
	}

	rec, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !rec.Present || rec.ImageID != "fw-1.0.0.bin" {
		t.Errorf("prior record not preserved: %+v", rec)
	}
}

func TestStore_MaxLengthIdentifierFits(t *testing.T) {
	store := newTestStore(t)

	id := strings.Repeat("a", MaxIdentifierLen)
	if err := store.Save(id); err != nil {
		t.Fatalf("save of max-length identifier failed: %v", err)
	}

	rec, _ := store.Load()
	if !rec.Present || rec.ImageID != id {
		t.Error("max-length identifier did not round-trip")
	}
}

func TestStore_Clear(t *testing.T) {
	store := newTestStore(t)

	store.Save("fw-1.0.0.bin")
	if err := store.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	rec, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if rec.Present {
		t.Errorf("record present after clear: %+v", rec)
	}
}

// corruptSlot returns fixed bytes regardless of what was written.
type corruptSlot struct {
	data []byte
}

func (c *corruptSlot) Read() ([]byte, error) { return c.data, nil }
func (c *corruptSlot) Write(d []byte) error  { c.data = d; return nil }

func TestStore_CorruptSlotReportedAbsent(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"bad magic", []byte{0x00, 0x00, 5, 'a', 'b', 'c', 'd', 'e'}},
		{"zero length", []byte{0x55, 0xAA, 0}},
		{"length past slot end", []byte{0x55, 0xAA, 200}},
		{"truncated header", []byte{0x55}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(&corruptSlot{data: tt.data})
			rec, err := store.Load()
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if rec.Present {
				t.Errorf("corrupt slot reported present: %+v", rec)
			}
		})
	}
}
