package platform

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/deviceops/fwagent/pkg/errors"
)

// SlotConfig describes one firmware slot of the A/B pair.
type SlotConfig struct {
	Label string
	Path  string
}

// BlockDeviceConfig configures a BlockDevice.
type BlockDeviceConfig struct {
	SlotA SlotConfig
	SlotB SlotConfig
	// Capacity is the size of each slot in bytes; BeginWrite rejects
	// larger images before any byte is written.
	Capacity int64
	// StatePath is where boot selection and verification states persist.
	StatePath string
	// RestartCommand is executed by Restart; defaults to /sbin/reboot.
	RestartCommand []string
}

type bootState struct {
	// Running is the slot this boot came from; Boot is the slot selected
	// for the next boot. They diverge between a boot-partition switch and
	// the reboot that applies it.
	Running     string            `json:"running"`
	Boot        string            `json:"boot"`
	States      map[string]string `json:"states"`
	LastInvalid string            `json:"last_invalid,omitempty"`
}

// BlockDevice implements Device over two slot image paths and a JSON boot
// state file, the way u-boot/grub environment-file schemes track A/B state
// on embedded Linux. Staged writes land in a .staging file next to the
// target slot and are renamed into place on finalize, so an interrupted
// transfer never clobbers the previous image.
//
// The running partition is taken from the persisted boot selection: this
// process is assumed to be running from the slot it last selected.
type BlockDevice struct {
	cfg   BlockDeviceConfig
	state bootState

	// in-progress write session
	staging  *os.File
	expected int64
	written  int64
	target   string
}

// NewBlockDevice opens or initializes the boot state and returns the device.
func NewBlockDevice(cfg BlockDeviceConfig) (*BlockDevice, error) {
	if cfg.SlotA.Label == "" || cfg.SlotB.Label == "" {
		return nil, fmt.Errorf("both slots must be configured")
	}

	d := &BlockDevice{cfg: cfg}

	data, err := os.ReadFile(cfg.StatePath)
	switch {
	case os.IsNotExist(err):
		d.state = bootState{
			Running: cfg.SlotA.Label,
			Boot:    cfg.SlotA.Label,
			States: map[string]string{
				cfg.SlotA.Label: StateValid.String(),
				cfg.SlotB.Label: StateUndefined.String(),
			},
		}
		if err := d.saveState(); err != nil {
			return nil, err
		}
		slog.Info("boot_state_initialized", "running", d.state.Running, "state_path", cfg.StatePath)
	case err != nil:
		return nil, errors.Wrap(err, "failed to read boot state")
	default:
		if err := json.Unmarshal(data, &d.state); err != nil {
			return nil, errors.Wrap(err, "failed to parse boot state")
		}
		if d.state.States == nil {
			d.state.States = make(map[string]string)
		}
		// A boot selection made before the last restart has now taken
		// effect: this process is running from the selected slot.
		if d.state.Boot != "" && d.state.Boot != d.state.Running {
			slog.Info("booted_into_slot", "from", d.state.Running, "to", d.state.Boot)
			d.state.Running = d.state.Boot
			if err := d.saveState(); err != nil {
				return nil, err
			}
		}
		slog.Info("boot_state_loaded", "running", d.state.Running, "state_path", cfg.StatePath)
	}

	return d, nil
}

func (d *BlockDevice) saveState() error {
	data, err := json.MarshalIndent(d.state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode boot state")
	}
	if err := os.MkdirAll(filepath.Dir(d.cfg.StatePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create state directory")
	}

	tmp := d.cfg.StatePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write boot state")
	}
	if err := os.Rename(tmp, d.cfg.StatePath); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "failed to commit boot state")
	}
	return nil
}

func (d *BlockDevice) slotByLabel(label string) (SlotConfig, bool) {
	switch label {
	case d.cfg.SlotA.Label:
		return d.cfg.SlotA, true
	case d.cfg.SlotB.Label:
		return d.cfg.SlotB, true
	}
	return SlotConfig{}, false
}

// BeginWrite opens a staging file for the inactive slot. The capacity check
// happens here, before any byte is written.
func (d *BlockDevice) BeginWrite(size int64) error {
	target, ok := d.NextUpdatePartition()
	if !ok {
		return fmt.Errorf("no inactive partition to write to")
	}
	if d.cfg.Capacity > 0 && size > d.cfg.Capacity {
		slog.Error("image_exceeds_slot_capacity", "size", size, "capacity", d.cfg.Capacity, "slot", target)
		return fmt.Errorf("image size %d exceeds slot capacity %d", size, d.cfg.Capacity)
	}

	slot, _ := d.slotByLabel(target)
	if err := os.MkdirAll(filepath.Dir(slot.Path), 0755); err != nil {
		return errors.Wrap(err, "failed to create slot directory")
	}

	f, err := os.OpenFile(slot.Path+".staging", os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to open staging file")
	}

	d.staging = f
	d.expected = size
	d.written = 0
	d.target = target

	slog.Info("write_session_started", "slot", target, "size", size)
	return nil
}

// WriteChunk appends to the staging file.
func (d *BlockDevice) WriteChunk(data []byte) error {
	if d.staging == nil {
		return fmt.Errorf("no write session in progress")
	}
	n, err := d.staging.Write(data)
	if err != nil {
		return errors.Wrap(err, "failed to write chunk")
	}
	d.written += int64(n)
	return nil
}

// FinalizeWrite verifies the staged image size, syncs it, and renames it
// over the target slot.
func (d *BlockDevice) FinalizeWrite(verify bool) error {
	if d.staging == nil {
		return fmt.Errorf("no write session in progress")
	}
	staging := d.staging
	d.staging = nil

	if verify && d.written != d.expected {
		staging.Close()
		slog.Error("staged_image_size_mismatch", "written", d.written, "expected", d.expected)
		return fmt.Errorf("staged image is %d bytes, expected %d", d.written, d.expected)
	}
	if err := staging.Sync(); err != nil {
		staging.Close()
		return errors.Wrap(err, "failed to sync staged image")
	}
	if err := staging.Close(); err != nil {
		return errors.Wrap(err, "failed to close staged image")
	}

	slot, _ := d.slotByLabel(d.target)
	if err := os.Rename(slot.Path+".staging", slot.Path); err != nil {
		return errors.Wrap(err, "failed to commit staged image")
	}

	// A verified image is marked bootable immediately: the written slot is
	// selected for next boot in pending-verify, the way ROM bootloaders
	// with rollback enabled treat a finished OTA write.
	d.state.States[d.target] = StatePendingVerify.String()
	d.state.Boot = d.target
	if err := d.saveState(); err != nil {
		return err
	}

	slog.Info("write_session_finalized", "slot", d.target, "bytes", d.written)
	return nil
}

func (d *BlockDevice) RunningPartition() string {
	return d.state.Running
}

func (d *BlockDevice) NextUpdatePartition() (string, bool) {
	switch d.state.Running {
	case d.cfg.SlotA.Label:
		return d.cfg.SlotB.Label, true
	case d.cfg.SlotB.Label:
		return d.cfg.SlotA.Label, true
	}
	return "", false
}

func (d *BlockDevice) LastInvalidPartition() (string, bool) {
	return d.state.LastInvalid, d.state.LastInvalid != ""
}

// SetBootPartition selects the slot for the next boot; the running slot is
// unaffected until the device restarts. A slot other than the running one
// boots into pending-verify, mirroring bootloaders with rollback enabled.
func (d *BlockDevice) SetBootPartition(label string) error {
	if _, ok := d.slotByLabel(label); !ok {
		return fmt.Errorf("unknown partition label: %s", label)
	}
	prev := d.state.Boot
	if label != d.state.Running {
		d.state.States[label] = StatePendingVerify.String()
	}
	d.state.Boot = label
	if err := d.saveState(); err != nil {
		d.state.Boot = prev
		return err
	}
	slog.Info("boot_partition_set", "from", prev, "to", label)
	return nil
}

func (d *BlockDevice) VerificationState(label string) VerifyState {
	return ParseVerifyState(d.state.States[label])
}

// MarkRunningValid confirms the running image, cancelling the pending
// auto-rollback.
func (d *BlockDevice) MarkRunningValid() error {
	d.state.States[d.state.Running] = StateValid.String()
	if err := d.saveState(); err != nil {
		return err
	}
	slog.Info("running_image_marked_valid", "slot", d.state.Running)
	return nil
}

// Restart executes the configured restart command and blocks. It never
// returns; on embedded targets the reboot tears the process down.
func (d *BlockDevice) Restart() {
	cmd := d.cfg.RestartCommand
	if len(cmd) == 0 {
		cmd = []string{"/sbin/reboot"}
	}
	slog.Info("restarting_device", "command", cmd[0])

	if err := exec.Command(cmd[0], cmd[1:]...).Run(); err != nil {
		slog.Error("restart_command_failed", "command", cmd[0], "error", err)
		os.Exit(1)
	}
	select {}
}
