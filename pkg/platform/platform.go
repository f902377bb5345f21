// Package platform abstracts the device's dual-partition flash layout and
// boot selection. The platform is authoritative for all partition state;
// callers must not cache it across calls.
package platform

// VerifyState is the image verification state of a partition's firmware.
//
// A freshly booted image starts in StatePendingVerify; confirming it via
// MarkRunningValid moves it to StateValid. If it is never confirmed, the
// bootloader invalidates it on the next boot and falls back to the previous
// partition. That auto-rollback transition happens outside this process.
type VerifyState int

const (
	StateUndefined VerifyState = iota
	StatePendingVerify
	StateValid
	StateInvalid
	StateAborted
)

func (s VerifyState) String() string {
	switch s {
	case StatePendingVerify:
		return "pending_verify"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	case StateAborted:
		return "aborted"
	default:
		return "undefined"
	}
}

// ParseVerifyState is the inverse of VerifyState.String; unknown strings
// map to StateUndefined.
func ParseVerifyState(s string) VerifyState {
	switch s {
	case "pending_verify":
		return StatePendingVerify
	case "valid":
		return StateValid
	case "invalid":
		return StateInvalid
	case "aborted":
		return StateAborted
	default:
		return StateUndefined
	}
}

// Device is the flash/partition collaborator. A write session targets the
// inactive partition: BeginWrite admits the image size before any byte is
// written, WriteChunk appends, FinalizeWrite verifies and commits.
type Device interface {
	BeginWrite(size int64) error
	WriteChunk(data []byte) error
	FinalizeWrite(verify bool) error

	// RunningPartition returns the label of the booted partition.
	RunningPartition() string
	// NextUpdatePartition returns the label the next update would be
	// written to, or false when no inactive partition exists.
	NextUpdatePartition() (string, bool)
	// LastInvalidPartition returns the label most recently invalidated by
	// the bootloader, or false when none has been.
	LastInvalidPartition() (string, bool)
	// SetBootPartition selects the partition to boot from next restart.
	SetBootPartition(label string) error
	// VerificationState reports the image verification state of a partition.
	VerificationState(label string) VerifyState
	// MarkRunningValid confirms the running image and cancels the pending
	// auto-rollback.
	MarkRunningValid() error
	// Restart reboots the device. It never returns.
	Restart()
}
