package partition

import (
	"errors"
	"testing"

	"github.com/deviceops/fwagent/pkg/platform"
)

// fakeDevice implements platform.Device for controller tests.
type fakeDevice struct {
	running     string
	next        string
	hasNext     bool
	lastInvalid string
	states      map[string]platform.VerifyState

	bootSet      string
	bootSetErr   error
	markedValid  int
	markValidErr error
}

func (d *fakeDevice) BeginWrite(size int64) error       { return nil }
func (d *fakeDevice) WriteChunk(data []byte) error      { return nil }
func (d *fakeDevice) FinalizeWrite(verify bool) error   { return nil }
func (d *fakeDevice) RunningPartition() string          { return d.running }
func (d *fakeDevice) NextUpdatePartition() (string, bool) {
	return d.next, d.hasNext
}
func (d *fakeDevice) LastInvalidPartition() (string, bool) {
	return d.lastInvalid, d.lastInvalid != ""
}
func (d *fakeDevice) SetBootPartition(label string) error {
	if d.bootSetErr != nil {
		return d.bootSetErr
	}
	d.bootSet = label
	return nil
}
func (d *fakeDevice) VerificationState(label string) platform.VerifyState {
	return d.states[label]
}
func (d *fakeDevice) MarkRunningValid() error {
	if d.markValidErr != nil {
		return d.markValidErr
	}
	d.markedValid++
	d.states[d.running] = platform.StateValid
	return nil
}
func (d *fakeDevice) Restart() { panic("restart must never be requested by the controller") }

func TestCanRollback(t *testing.T) {
	tests := []struct {
		name        string
		hasNext     bool
		next        string
		lastInvalid string
		want        bool
	}{
		{name: "next partition exists, none invalid", hasNext: true, next: "ota_1", want: true},
		{name: "no next partition", hasNext: false, want: false},
		{name: "next equals last invalid", hasNext: true, next: "ota_1", lastInvalid: "ota_1", want: false},
		{name: "next differs from last invalid", hasNext: true, next: "ota_1", lastInvalid: "ota_0", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDevice{
				running:     "ota_0",
				next:        tt.next,
				hasNext:     tt.hasNext,
				lastInvalid: tt.lastInvalid,
				states:      map[string]platform.VerifyState{},
			}
			if got := NewController(dev).CanRollback(); got != tt.want {
				t.Errorf("CanRollback() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRollback_Switches(t *testing.T) {
	dev := &fakeDevice{running: "ota_0", next: "ota_1", hasNext: true, states: map[string]platform.VerifyState{}}

	outcome, err := NewController(dev).Rollback()
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if outcome != RollbackSwitched {
		t.Fatalf("outcome = %v, want RollbackSwitched", outcome)
	}
	if dev.bootSet != "ota_1" {
		t.Errorf("boot partition set to %q, want ota_1", dev.bootSet)
	}
}

func TestRollback_NoTargetIsNotAnError(t *testing.T) {
	dev := &fakeDevice{running: "ota_0", hasNext: false, states: map[string]platform.VerifyState{}}

	outcome, err := NewController(dev).Rollback()
	if err != nil {
		t.Fatalf("no-target rollback returned error: %v", err)
	}
	if outcome != RollbackNoTarget {
		t.Errorf("outcome = %v, want RollbackNoTarget", outcome)
	}
}

func TestRollback_BootSetFailureIsFatal(t *testing.T) {
	dev := &fakeDevice{
		running: "ota_0", next: "ota_1", hasNext: true,
		bootSetErr: errors.New("nvs write failed"),
		states:     map[string]platform.VerifyState{},
	}

	_, err := NewController(dev).Rollback()
	if !errors.Is(err, ErrBootPartitionSet) {
		t.Fatalf("expected ErrBootPartitionSet, got %v", err)
	}
}

func TestMarkValid_PendingVerify(t *testing.T) {
	dev := &fakeDevice{
		running: "ota_1",
		states:  map[string]platform.VerifyState{"ota_1": platform.StatePendingVerify},
	}
	ctrl := NewController(dev)

	changed, err := ctrl.MarkValid()
	if err != nil || !changed {
		t.Fatalf("MarkValid() = %v, %v; want true, nil", changed, err)
	}

	// Second call is idempotent: no error, no further platform request.
	changed, err = ctrl.MarkValid()
	if err != nil {
		t.Fatalf("second MarkValid errored: %v", err)
	}
	if changed {
		t.Error("second MarkValid reported a change")
	}
	if dev.markedValid != 1 {
		t.Errorf("platform asked to mark valid %d times, want 1", dev.markedValid)
	}
}

func TestMarkValid_TerminalStatesAreNoops(t *testing.T) {
	for _, st := range []platform.VerifyState{platform.StateValid, platform.StateInvalid, platform.StateAborted, platform.StateUndefined} {
		dev := &fakeDevice{running: "ota_0", states: map[string]platform.VerifyState{"ota_0": st}}
		changed, err := NewController(dev).MarkValid()
		if err != nil || changed {
			t.Errorf("state %v: MarkValid() = %v, %v; want false, nil", st, changed, err)
		}
	}
}

func TestDescribe(t *testing.T) {
	dev := &fakeDevice{running: "ota_0", next: "ota_1", hasNext: true, states: map[string]platform.VerifyState{}}
	ctrl := NewController(dev)

	if ctrl.DescribeRunning() != "ota_0" {
		t.Errorf("running = %q", ctrl.DescribeRunning())
	}
	if ctrl.DescribeNext() != "ota_1" {
		t.Errorf("next = %q", ctrl.DescribeNext())
	}

	dev.hasNext = false
	if ctrl.DescribeNext() != "unknown" {
		t.Errorf("next without target = %q, want unknown", ctrl.DescribeNext())
	}
}
