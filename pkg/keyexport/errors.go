package keyexport

import "errors"

var (
	// ErrIncorrectState is returned when an operation is invoked outside the
	// state it is valid in.
	ErrIncorrectState = errors.New("keyexport: incorrect state")

	// ErrInvalidArgument is returned for malformed messages and arguments.
	ErrInvalidArgument = errors.New("keyexport: invalid argument")

	// ErrKeyExportReconfigureRequired is returned by ProcessKeyExportRequest
	// when the proposed config is not allowed but an alternate is. The
	// caller must answer with GenerateKeyExportReconfigure.
	ErrKeyExportReconfigureRequired = errors.New("keyexport: reconfigure required")

	// ErrNoCommonKeyExportConfigurations is returned when the peers share no
	// allowed config.
	ErrNoCommonKeyExportConfigurations = errors.New("keyexport: no common configurations")

	// ErrInvalidKeyExportConfiguration is returned for configs that are
	// unknown or not allowed.
	ErrInvalidKeyExportConfiguration = errors.New("keyexport: invalid configuration")

	// ErrInvalidSignature is returned when a message signature does not
	// verify.
	ErrInvalidSignature = errors.New("keyexport: invalid signature")

	// ErrExportedKeyAuthenticationFailed is returned when the exported key
	// authenticator does not match.
	ErrExportedKeyAuthenticationFailed = errors.New("keyexport: exported key authentication failed")

	// ErrUnauthorizedKeyExport is returned by delegates that refuse a
	// request or response.
	ErrUnauthorizedKeyExport = errors.New("keyexport: unauthorized key export")

	// ErrNoKeyStore is returned when a responder has no key store.
	ErrNoKeyStore = errors.New("keyexport: no key store")
)
