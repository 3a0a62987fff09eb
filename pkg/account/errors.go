package account

import (
	"errors"

	"github.com/telekom/account-client/pkg/account/browserid"
)

var (
	// ErrConfiguration reports an invalid or unresolvable Config.
	ErrConfiguration = errors.New("configuration error")
	// ErrStateMismatch reports a completion whose state token does not match
	// the pending authorization.
	ErrStateMismatch = errors.New("state mismatch")
	// ErrNoPendingFlow reports a completion without a pending authorization.
	ErrNoPendingFlow = errors.New("no pending authorization flow")
	// ErrNotAuthenticated reports a call that requires an authenticated account.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrTransport wraps failures of the remote collaborators.
	ErrTransport = errors.New("transport error")
	// ErrNotFound is returned by collaborators for an expected absence, such as
	// an empty device command queue.
	ErrNotFound = errors.New("not found")
	// ErrPersistence wraps a failed Persister.Save. The mutation that triggered
	// the save stays applied in memory.
	ErrPersistence = errors.New("persisting account state")
	// ErrMalformedSnapshot reports a snapshot that cannot be reconstructed.
	ErrMalformedSnapshot = errors.New("malformed snapshot")

	ErrCrypto       = browserid.ErrCrypto
	ErrMalformedKey = browserid.ErrMalformedKey
	ErrUnsupported  = browserid.ErrUnsupported
)
