package domain

// TransportKind names the transport variant backing a connection.
type TransportKind string

const (
	// TransportLive is a real bidirectional socket.
	TransportLive TransportKind = "live"
	// TransportSimulated is the in-process stand-in that synthesizes replies.
	TransportSimulated TransportKind = "simulated"
)

// Phase is a step of the connection state machine.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
)

// ConnectionState is the current connection state of a session.
// Kind is only meaningful while Phase is PhaseConnected.
type ConnectionState struct {
	Phase Phase         `json:"phase"`
	Kind  TransportKind `json:"kind,omitempty"`
}

// Disconnected returns the idle state.
func Disconnected() ConnectionState {
	return ConnectionState{Phase: PhaseDisconnected}
}

// Connecting returns the transient state entered while a transport opens.
func Connecting() ConnectionState {
	return ConnectionState{Phase: PhaseConnecting}
}

// Connected returns the state for an open transport of the given kind.
func Connected(kind TransportKind) ConnectionState {
	return ConnectionState{Phase: PhaseConnected, Kind: kind}
}

// IsConnected returns true if a transport is open.
func (s ConnectionState) IsConnected() bool {
	return s.Phase == PhaseConnected
}

// IsSimulated returns true if the open transport is the simulated one.
func (s ConnectionState) IsSimulated() bool {
	return s.Phase == PhaseConnected && s.Kind == TransportSimulated
}

func (s ConnectionState) String() string {
	if s.Phase == PhaseConnected {
		return string(s.Phase) + "(" + string(s.Kind) + ")"
	}
	return string(s.Phase)
}
