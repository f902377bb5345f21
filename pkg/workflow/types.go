package workflow

// UpdateRequest is the FSM input
type UpdateRequest struct {
	ManifestURL    string
	Device         string
	CurrentVersion string
}

// UpdateResponse is the FSM output (accumulated across transitions)
type UpdateResponse struct {
	// From Evaluate
	Available bool
	Forced    bool
	Version   string
	URL       string

	// From Transfer
	ImageID string

	// From Record/Complete
	Outcome      int
	Status       string
	ErrorMessage string
}

// State names
const (
	StateEvaluate = "evaluate"
	StateTransfer = "transfer"
	StateRecord   = "record"
	StateComplete = "complete"
	StateFailed   = "failed"
)

// Status values
const (
	StatusUpdated  = "updated"
	StatusNoUpdate = "no_update"
)
