package widget

// UIState is the widget's lifecycle state. Transitions only happen through
// the controller's event table; callers observe state via snapshots.
type UIState int

const (
	// StateInit is the launch state: button disabled and loading while the
	// first access check runs.
	StateInit UIState = iota
	// StateReady means access is granted and the chat window is closed.
	StateReady
	// StateOpen means access is granted and the chat window is visible.
	StateOpen
	// StateLocked means access was denied or the check failed. Only a fresh
	// check can leave it.
	StateLocked
)

func (s UIState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StateOpen:
		return "OPEN"
	case StateLocked:
		return "LOCKED"
	default:
		return "UNKNOWN"
	}
}

type uiEvent int

const (
	eventGranted uiEvent = iota
	eventDenied
	eventError
	eventOpen
	eventClose
)

func (e uiEvent) String() string {
	switch e {
	case eventGranted:
		return "access-granted"
	case eventDenied:
		return "access-denied"
	case eventError:
		return "access-error"
	case eventOpen:
		return "user-opens"
	case eventClose:
		return "user-closes"
	default:
		return "unknown"
	}
}

// transition is the total event table. The second return reports whether the
// event is legal in the given state; illegal events leave the state unchanged
// and the controller surfaces a warning instead of ignoring them.
func transition(s UIState, ev uiEvent) (UIState, bool) {
	switch ev {
	case eventGranted:
		// A grant while the window is open keeps it open; everywhere else,
		// including a retry out of LOCKED, lands on READY.
		if s == StateOpen {
			return StateOpen, true
		}
		return StateReady, true
	case eventDenied, eventError:
		return StateLocked, true
	case eventOpen:
		switch s {
		case StateReady, StateOpen:
			return StateOpen, true
		default:
			return s, false
		}
	case eventClose:
		if s == StateOpen {
			return StateReady, true
		}
		return s, false
	default:
		return s, false
	}
}
