// Package partition implements the boot-partition and rollback protocol on
// top of the platform collaborator. The platform stays authoritative: the
// controller reads state fresh on every call and only requests transitions.
package partition

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/deviceops/fwagent/pkg/platform"
)

// ErrBootPartitionSet reports a failed boot-partition switch. The caller
// must not assume any state change occurred.
var ErrBootPartitionSet = errors.New("partition: failed to set boot partition")

// RollbackOutcome is the result of a rollback request.
type RollbackOutcome int

const (
	// RollbackNoTarget means no safe partition exists to roll back to.
	// It is a reported outcome, not an error.
	RollbackNoTarget RollbackOutcome = iota
	// RollbackSwitched means the boot partition was switched; the caller
	// must reboot for it to take effect.
	RollbackSwitched
)

// Controller drives rollback and image validation against a device.
type Controller struct {
	dev platform.Device
}

// NewController creates a Controller for dev.
func NewController(dev platform.Device) *Controller {
	return &Controller{dev: dev}
}

// CanRollback reports whether a rollback target exists: the next-update
// partition must exist and must not be the partition most recently
// invalidated by the bootloader (rolling back into a known-bad image would
// brick the boot cycle).
func (c *Controller) CanRollback() bool {
	next, ok := c.dev.NextUpdatePartition()
	if !ok {
		return false
	}
	if invalid, ok := c.dev.LastInvalidPartition(); ok && next == invalid {
		return false
	}
	return true
}

// Rollback switches the boot partition to the next-update partition. It
// never reboots; a RollbackSwitched outcome means the caller must restart
// the device for the switch to take effect.
func (c *Controller) Rollback() (RollbackOutcome, error) {
	if !c.CanRollback() {
		slog.Info("rollback_no_target")
		return RollbackNoTarget, nil
	}

	next, _ := c.dev.NextUpdatePartition()
	if err := c.dev.SetBootPartition(next); err != nil {
		slog.Error("rollback_boot_switch_failed", "target", next, "error", err)
		return RollbackNoTarget, fmt.Errorf("%w: %s", ErrBootPartitionSet, err)
	}

	slog.Info("rollback_boot_switched", "target", next)
	return RollbackSwitched, nil
}

// MarkValid confirms the running image when it is pending verification,
// cancelling the bootloader's automatic rollback. It returns changed=false
// without error when the image is already valid or in a terminal state;
// calling it repeatedly is safe.
func (c *Controller) MarkValid() (changed bool, err error) {
	running := c.dev.RunningPartition()
	state := c.dev.VerificationState(running)

	if state != platform.StatePendingVerify {
		slog.Info("mark_valid_noop", "slot", running, "state", state.String())
		return false, nil
	}

	if err := c.dev.MarkRunningValid(); err != nil {
		slog.Error("mark_valid_failed", "slot", running, "error", err)
		return false, err
	}

	slog.Info("running_image_confirmed", "slot", running)
	return true, nil
}

// DescribeRunning returns the running partition label.
func (c *Controller) DescribeRunning() string {
	return c.dev.RunningPartition()
}

// DescribeNext returns the next-update partition label, or "unknown" when
// none exists.
func (c *Controller) DescribeNext() string {
	next, ok := c.dev.NextUpdatePartition()
	if !ok {
		return "unknown"
	}
	return next
}
