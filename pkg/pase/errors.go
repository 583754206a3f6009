package pase

import "errors"

var (
	// ErrIncorrectState is returned when an operation is invoked outside the
	// state it is valid in.
	ErrIncorrectState = errors.New("pase: incorrect state")

	// ErrInvalidArgument is returned for invalid parameters.
	ErrInvalidArgument = errors.New("pase: invalid argument")

	// ErrInvalidMessage is returned for malformed messages.
	ErrInvalidMessage = errors.New("pase: invalid message")

	// ErrPASEReconfigureRequired is returned by ProcessInitiatorStep1 when the
	// responder wants a stronger config. The caller must answer with
	// GenerateResponderReconfigure.
	ErrPASEReconfigureRequired = errors.New("pase: reconfigure required")

	// ErrNoCommonPASEConfigurations is returned when the peers share no
	// allowed config.
	ErrNoCommonPASEConfigurations = errors.New("pase: no common configurations")

	// ErrInvalidPASEConfiguration is returned for configs that are unknown
	// or not allowed.
	ErrInvalidPASEConfiguration = errors.New("pase: invalid configuration")

	// ErrUnsupportedEncryptionType is returned for encryption types other
	// than AES128CTRSHA1.
	ErrUnsupportedEncryptionType = errors.New("pase: unsupported encryption type")

	// ErrPASEZKPVerificationFailed is returned when a peer's zero-knowledge
	// proof does not verify.
	ErrPASEZKPVerificationFailed = errors.New("pase: zero-knowledge proof verification failed")

	// ErrKeyConfirmationFailed is returned when a key confirmation hash does
	// not match.
	ErrKeyConfirmationFailed = errors.New("pase: key confirmation failed")
)
