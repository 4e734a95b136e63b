package secret

import "errors"

// Sentinel errors for secret resolution.
var (
	// ErrMissingEnv is returned when ${VAR} names an unset variable.
	ErrMissingEnv = errors.New("secret: missing environment variables")

	// ErrUnknownProvider is returned for a reference to an unregistered provider.
	ErrUnknownProvider = errors.New("secret: provider not registered")

	// ErrEmptySecret is returned by a strict resolver when a provider
	// resolves a reference to "".
	ErrEmptySecret = errors.New("secret: resolved to empty value")

	// ErrNotFound is returned by providers when a reference does not exist.
	ErrNotFound = errors.New("secret: not found")
)
