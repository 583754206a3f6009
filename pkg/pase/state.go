package pase

// State is the PASE state machine state. Initiator states are 10-19 and
// responder states 20-29.
type State uint8

const (
	StateReset State = 0

	StateInitiatorStep1Generated       State = 10
	StateResponderReconfigureProcessed State = 11
	StateResponderStep1Processed       State = 12
	StateResponderStep2Processed       State = 13
	StateInitiatorStep2Generated       State = 14
	StateInitiatorDone                 State = 15

	StateInitiatorStep1Processed State = 20
	StateResponderStep1Generated State = 21
	StateResponderStep2Generated State = 22
	StateInitiatorStep2Processed State = 23
	StateResponderDone           State = 24
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReset:
		return "Reset"
	case StateInitiatorStep1Generated:
		return "InitiatorStep1Generated"
	case StateResponderReconfigureProcessed:
		return "ResponderReconfigureProcessed"
	case StateResponderStep1Processed:
		return "ResponderStep1Processed"
	case StateResponderStep2Processed:
		return "ResponderStep2Processed"
	case StateInitiatorStep2Generated:
		return "InitiatorStep2Generated"
	case StateInitiatorDone:
		return "InitiatorDone"
	case StateInitiatorStep1Processed:
		return "InitiatorStep1Processed"
	case StateResponderStep1Generated:
		return "ResponderStep1Generated"
	case StateResponderStep2Generated:
		return "ResponderStep2Generated"
	case StateInitiatorStep2Processed:
		return "InitiatorStep2Processed"
	case StateResponderDone:
		return "ResponderDone"
	default:
		return "Unknown"
	}
}

// IsInitiator reports whether s is an initiator state.
func (s State) IsInitiator() bool {
	return s >= 10 && s <= 19
}

// IsResponder reports whether s is a responder state.
func (s State) IsResponder() bool {
	return s >= 20 && s <= 29
}
