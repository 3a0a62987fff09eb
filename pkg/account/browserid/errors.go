package browserid

import "errors"

var (
	// ErrCrypto is returned when the underlying primitive fails to generate a
	// key or produce a signature.
	ErrCrypto = errors.New("crypto error")
	// ErrMalformedKey is returned when persisted key material is incomplete or
	// does not describe a usable key.
	ErrMalformedKey = errors.New("malformed key")
	// ErrUnsupported marks capabilities that are intentionally not provided,
	// such as private key export and message verification.
	ErrUnsupported = errors.New("unsupported operation")
)
