package browserid

import (
	"crypto/dsa" //nolint:staticcheck // SA1019: legacy assertions are DSA signed, there is no replacement scheme to move to
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strconv"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const dsaAlgorithm = "DS"

// DSAKeyPair is a DSA identity key pair holding both public and private
// components.
type DSAKeyPair struct {
	key dsa.PrivateKey
}

var _ KeyPair = (*DSAKeyPair)(nil)

// dsaSizes maps supported modulus lengths to their FIPS 186-3 parameter sizes.
var dsaSizes = map[int]dsa.ParameterSizes{
	1024: dsa.L1024N160,
	2048: dsa.L2048N256,
	3072: dsa.L3072N256,
}

// GenerateDSA creates a fresh key pair with a modulus of bits length. It is CPU
// bound and can take seconds for the larger sizes; do not call it while holding
// a lock other work is waiting on.
func GenerateDSA(bits int) (*DSAKeyPair, error) {
	return generateDSA(rand.Reader, bits)
}

func generateDSA(random io.Reader, bits int) (*DSAKeyPair, error) {
	sizes, ok := dsaSizes[bits]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported DSA key length %d", ErrCrypto, bits)
	}
	var kp DSAKeyPair
	if err := dsa.GenerateParameters(&kp.key.Parameters, random, sizes); err != nil {
		return nil, fmt.Errorf("%w: generating DSA parameters: %v", ErrCrypto, err)
	}
	if err := dsa.GenerateKey(&kp.key, random); err != nil {
		return nil, fmt.Errorf("%w: generating DSA key: %v", ErrCrypto, err)
	}
	return &kp, nil
}

// NewDSAKeyPair builds a key pair from its components. y must equal g^x mod p.
func NewDSAKeyPair(g, p, q, x, y *big.Int) (*DSAKeyPair, error) {
	for name, v := range map[string]*big.Int{"g": g, "p": p, "q": q, "x": x, "y": y} {
		if v == nil || v.Sign() <= 0 {
			return nil, fmt.Errorf("%w: component %s must be a positive integer", ErrMalformedKey, name)
		}
	}
	if new(big.Int).Exp(g, x, p).Cmp(y) != 0 {
		return nil, fmt.Errorf("%w: public component does not match private component", ErrMalformedKey)
	}
	kp := &DSAKeyPair{}
	kp.key.G = new(big.Int).Set(g)
	kp.key.P = new(big.Int).Set(p)
	kp.key.Q = new(big.Int).Set(q)
	kp.key.X = new(big.Int).Set(x)
	kp.key.Y = new(big.Int).Set(y)
	return kp, nil
}

// Bits returns the modulus length.
func (k *DSAKeyPair) Bits() int {
	return k.key.P.BitLen()
}

func (k *DSAKeyPair) Algorithm() string {
	return dsaAlgorithm + strconv.Itoa(k.Bits()/8)
}

// Sign hashes message with SHA-256, truncates the digest to the byte length of
// q and returns the DER encoded (r, s) pair.
func (k *DSAKeyPair) Sign(message []byte) ([]byte, error) {
	return k.sign(rand.Reader, message)
}

func (k *DSAKeyPair) sign(random io.Reader, message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	hashed := digest[:]
	if n := (k.key.Q.BitLen() + 7) / 8; len(hashed) > n {
		hashed = hashed[:n]
	}
	r, s, err := dsa.Sign(random, &k.key, hashed)
	if err != nil {
		return nil, fmt.Errorf("%w: signing: %v", ErrCrypto, err)
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	sig, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: encoding signature: %v", ErrCrypto, err)
	}
	return sig, nil
}

func (k *DSAKeyPair) VerifyMessage(_, _ []byte) (bool, error) {
	return false, fmt.Errorf("%w: message verification", ErrUnsupported)
}

func (k *DSAKeyPair) ExportPublic() (PublicKey, error) {
	return PublicKey{
		Algorithm: dsaAlgorithm,
		Y:         k.key.Y.String(),
		G:         k.key.G.String(),
		P:         k.key.P.String(),
		Q:         k.key.Q.String(),
	}, nil
}

func (k *DSAKeyPair) ExportFull() (map[string]string, error) {
	return nil, fmt.Errorf("%w: private key export", ErrUnsupported)
}

// PublicKey returns the underlying DSA public key.
func (k *DSAKeyPair) PublicKey() dsa.PublicKey {
	return k.key.PublicKey
}

// String never prints key material.
func (k *DSAKeyPair) String() string {
	return "<dsa_key_pair " + k.Algorithm() + ">"
}

type dsaDocument struct {
	Algorithm string  `json:"algorithm,omitempty"`
	G         *string `json:"g"`
	P         *string `json:"p"`
	Q         *string `json:"q"`
	X         *string `json:"x"`
	Y         *string `json:"y"`
}

// MarshalJSON writes every component, private ones included, as decimal
// strings. It is meant for the account snapshot, not for publication.
func (k *DSAKeyPair) MarshalJSON() ([]byte, error) {
	str := func(v *big.Int) *string {
		s := v.String()
		return &s
	}
	return json.Marshal(dsaDocument{
		Algorithm: dsaAlgorithm,
		G:         str(k.key.G),
		P:         str(k.key.P),
		Q:         str(k.key.Q),
		X:         str(k.key.X),
		Y:         str(k.key.Y),
	})
}

// UnmarshalDSA parses the document written by MarshalJSON.
func UnmarshalDSA(data []byte) (*DSAKeyPair, error) {
	var doc dsaDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if doc.Algorithm != "" && doc.Algorithm != dsaAlgorithm {
		return nil, fmt.Errorf("%w: algorithm %q is not DSA", ErrMalformedKey, doc.Algorithm)
	}
	g, err := parseComponent("g", doc.G)
	if err != nil {
		return nil, err
	}
	p, err := parseComponent("p", doc.P)
	if err != nil {
		return nil, err
	}
	q, err := parseComponent("q", doc.Q)
	if err != nil {
		return nil, err
	}
	x, err := parseComponent("x", doc.X)
	if err != nil {
		return nil, err
	}
	y, err := parseComponent("y", doc.Y)
	if err != nil {
		return nil, err
	}
	return NewDSAKeyPair(g, p, q, x, y)
}

func parseComponent(name string, value *string) (*big.Int, error) {
	if value == nil {
		return nil, fmt.Errorf("%w: missing component %s", ErrMalformedKey, name)
	}
	n, ok := new(big.Int).SetString(*value, 10)
	if !ok {
		return nil, fmt.Errorf("%w: component %s is not a decimal integer", ErrMalformedKey, name)
	}
	return n, nil
}
