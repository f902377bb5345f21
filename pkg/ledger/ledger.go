// Package ledger persists the identifier of the last successfully installed
// firmware image in a small fixed-size durable slot. The record is the only
// defense against reinstalling the same forced image in a loop, so a save
// must be durably committed before the caller reboots.
package ledger

import (
	"encoding/binary"
	"errors"
	"log/slog"

	pkgerrors "github.com/deviceops/fwagent/pkg/errors"
)

// Slot layout: 2-byte little-endian magic, 1-byte length, length raw bytes.
const (
	SlotSize   = 128
	magic      = 0xAA55
	headerSize = 3
)

// MaxIdentifierLen is the longest identifier the slot can hold.
const MaxIdentifierLen = SlotSize - headerSize - 1

// ErrIdentifierTooLong reports an identifier that does not fit the slot.
// The previous record is left untouched; silent truncation would corrupt
// future comparisons against manifest-derived identifiers.
var ErrIdentifierTooLong = errors.New("ledger: identifier too long for slot")

// Slot is the durable storage collaborator. Write must commit before
// returning success; a crash mid-write must leave the previous contents
// readable (no torn state exposed to Read).
type Slot interface {
	Read() ([]byte, error)
	Write(data []byte) error
}

// Record is the decoded slot contents.
type Record struct {
	Present bool
	ImageID string
}

// Store reads and writes installed-image records through a Slot.
type Store struct {
	slot Slot
}

// NewStore creates a Store over the given slot.
func NewStore(slot Slot) *Store {
	return &Store{slot: slot}
}

// Load decodes the slot. A record is reported present only when the magic
// marker matches and the length byte describes a plausible identifier;
// anything else is absent, never partially trusted.
func (s *Store) Load() (Record, error) {
	data, err := s.slot.Read()
	if err != nil {
		return Record{}, pkgerrors.Wrap(err, "failed to read ledger slot")
	}
	if len(data) < headerSize || binary.LittleEndian.Uint16(data[0:2]) != magic {
		slog.Info("ledger_record_absent")
		return Record{}, nil
	}

	n := int(data[2])
	if n == 0 || n > MaxIdentifierLen || headerSize+n > len(data) {
		slog.Info("ledger_record_absent", "reason", "invalid_length", "length", n)
		return Record{}, nil
	}

	id := string(data[headerSize : headerSize+n])
	slog.Info("ledger_record_loaded", "image_id", id)
	return Record{Present: true, ImageID: id}, nil
}

// Save encodes and durably commits the identifier. Callers must only reboot
// after Save returns nil.
func (s *Store) Save(imageID string) error {
	if len(imageID) > MaxIdentifierLen {
		slog.Error("ledger_identifier_too_long", "image_id", imageID, "length", len(imageID), "max", MaxIdentifierLen)
		return ErrIdentifierTooLong
	}

	buf := make([]byte, SlotSize)
	binary.LittleEndian.PutUint16(buf[0:2], magic)
	buf[2] = byte(len(imageID))
	copy(buf[headerSize:], imageID)

	if err := s.slot.Write(buf); err != nil {
		slog.Error("ledger_save_failed", "image_id", imageID, "error", err)
		return pkgerrors.Wrap(err, "failed to commit ledger record")
	}

	slog.Info("ledger_record_saved", "image_id", imageID)
	return nil
}

// Clear invalidates the record by zeroing the slot, allowing a forced
// update to run again for the same image.
func (s *Store) Clear() error {
	if err := s.slot.Write(make([]byte, SlotSize)); err != nil {
		slog.Error("ledger_clear_failed", "error", err)
		return pkgerrors.Wrap(err, "failed to clear ledger record")
	}
	slog.Info("ledger_record_cleared")
	return nil
}
