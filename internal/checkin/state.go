package checkin

// State is a step of the check-in state machine.
type State string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StateEmbedding State = "embedding"
	StateMatching  State = "matching"
	StateRecording State = "recording"
	StateDone      State = "done"
	StateError     State = "error"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// next is the transition function. It depends only on the current state and
// on whether the work done in that state failed.
func next(s State, err error) State {
	if err != nil {
		return StateError
	}
	switch s {
	case StateIdle:
		return StateCapturing
	case StateCapturing:
		return StateEmbedding
	case StateEmbedding:
		return StateMatching
	case StateMatching:
		return StateRecording
	case StateRecording:
		return StateDone
	}
	return s
}
