package keyexport

// State is the key export state machine state.
type State uint8

const (
	StateReset State = iota
	StateInitiatorGeneratingRequest
	StateInitiatorRequestGenerated
	StateInitiatorReconfigureProcessed
	StateInitiatorDone
	StateResponderProcessingRequest
	StateResponderRequestProcessed
	StateResponderDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReset:
		return "Reset"
	case StateInitiatorGeneratingRequest:
		return "InitiatorGeneratingRequest"
	case StateInitiatorRequestGenerated:
		return "InitiatorRequestGenerated"
	case StateInitiatorReconfigureProcessed:
		return "InitiatorReconfigureProcessed"
	case StateInitiatorDone:
		return "InitiatorDone"
	case StateResponderProcessingRequest:
		return "ResponderProcessingRequest"
	case StateResponderRequestProcessed:
		return "ResponderRequestProcessed"
	case StateResponderDone:
		return "ResponderDone"
	default:
		return "Unknown"
	}
}

// IsInitiator reports whether s is an initiator state.
func (s State) IsInitiator() bool {
	return s >= StateInitiatorGeneratingRequest && s <= StateInitiatorDone
}

// IsResponder reports whether s is a responder state.
func (s State) IsResponder() bool {
	return s >= StateResponderProcessingRequest && s <= StateResponderDone
}
