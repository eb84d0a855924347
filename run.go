package codegraph

// Run states. A run only moves forward through this list. Completed,
// failed and skipped are terminal; Resume is the one way out of failed.
const (
	StatePending        = "pending"
	StateDiscovering    = "discovering"
	StateParsingPass1   = "parsing_pass1"
	StateCommittedPass1 = "committed_pass1"
	StateResolvingPass2 = "resolving_pass2"
	StateCompleted      = "completed"
	StateFailed         = "failed"
	StateSkipped        = "skipped"
)

// IsTerminal reports whether a run in state has finished.
func IsTerminal(state string) bool {
	switch state {
	case StateCompleted, StateFailed, StateSkipped:
		return true
	}
	return false
}

// maxRunWarnings caps the warnings persisted with a run; the count of
// dropped references is always exact.
const maxRunWarnings = 200
