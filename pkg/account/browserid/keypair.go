package browserid

import (
	"encoding/json"
	"fmt"
)

// KeyPair is a signing identity. Implementations are immutable once built and
// may be shared between goroutines without further locking.
type KeyPair interface {
	// Algorithm returns the tag derived from the key length, e.g. "DS256".
	Algorithm() string
	// Sign returns a signature over the SHA-256 digest of message.
	Sign(message []byte) ([]byte, error)
	// VerifyMessage checks a signature produced by Sign.
	VerifyMessage(message, signature []byte) (bool, error)
	// ExportPublic returns the verification material only.
	ExportPublic() (PublicKey, error)
	// ExportFull would return private components to an untrusted caller and
	// is not provided by any implementation.
	ExportFull() (map[string]string, error)

	json.Marshaler
}

// PublicKey is the publishable half of a key pair. Numeric components are
// base-10 strings.
type PublicKey struct {
	Algorithm string `json:"algorithm"`
	Y         string `json:"y"`
	G         string `json:"g"`
	P         string `json:"p"`
	Q         string `json:"q"`
}

// Unmarshal rebuilds a key pair from the document produced by its MarshalJSON.
// Documents without an algorithm field are read as DSA, which is the only
// scheme older snapshots could contain.
func Unmarshal(data []byte) (KeyPair, error) {
	var head struct {
		Algorithm string `json:"algorithm"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	switch head.Algorithm {
	case "", dsaAlgorithm:
		return UnmarshalDSA(data)
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrMalformedKey, head.Algorithm)
	}
}
