package relay

// State is a step of the per-exchange state machine.
type State int

const (
	StateValidating State = iota
	StateLoading
	StateRecordingInput
	StateAssemblingContext
	StateStreaming
	StateRecordingOutput
	StateFinalizing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateLoading:
		return "loading"
	case StateRecordingInput:
		return "recording_input"
	case StateAssemblingContext:
		return "assembling_context"
	case StateStreaming:
		return "streaming"
	case StateRecordingOutput:
		return "recording_output"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// next is the only forward transition out of each non-terminal state.
// Any non-terminal state may also move to StateFailed.
var next = map[State]State{
	StateValidating:        StateLoading,
	StateLoading:           StateRecordingInput,
	StateRecordingInput:    StateAssemblingContext,
	StateAssemblingContext: StateStreaming,
	StateStreaming:         StateRecordingOutput,
	StateRecordingOutput:   StateFinalizing,
	StateFinalizing:        StateCompleted,
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return next[from] == to
}

// UserMessageDurable reports whether the user message is already persisted when
// an exchange is in state s.
func UserMessageDurable(s State) bool {
	return s > StateRecordingInput && s != StateFailed
}
