package mqtt

// State is the bridge connection state.
//
//	disconnected -> connecting -> connected -> (disconnected | error)
//
// StateError is terminal until Connect is called again.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateListener is called after every state transition. err is the cause
// of a transition to disconnected or error, nil otherwise.
type StateListener func(state State, err error)
