// Package workflow implements the firmware update finite state machine.
// It orchestrates manifest evaluation, image transfer to the inactive
// partition, and the ledger/history commit using the superfly/fsm library,
// so an update interrupted by a crash resumes from its last completed state.
package workflow

import (
	"context"

	"github.com/deviceops/fwagent/pkg/errors"
	"github.com/superfly/fsm"
)

// Register registers the firmware update FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[UpdateRequest, UpdateResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[UpdateRequest, UpdateResponse](manager, "firmware-update").
		Start(StateEvaluate, m.handleEvaluate).
		To(StateTransfer, m.handleTransfer).
		To(StateRecord, m.handleRecord).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
