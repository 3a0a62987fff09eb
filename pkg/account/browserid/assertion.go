package browserid

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultAssertionLifetime is used when AssertionClaims.Lifetime is zero.
const DefaultAssertionLifetime = 5 * time.Minute

// AssertionClaims describes the statement an assertion makes.
type AssertionClaims struct {
	Audience string
	Issuer   string
	Email    string
	IssuedAt time.Time
	Lifetime time.Duration
}

// MintAssertion returns a compact JWS signed by kp. The "alg" header carries
// the key pair's algorithm tag.
func MintAssertion(kp KeyPair, claims AssertionClaims) (string, error) {
	if kp == nil {
		return "", errors.New("key pair is required")
	}
	if claims.Audience == "" {
		return "", errors.New("assertion audience is required")
	}
	issued := claims.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}
	lifetime := claims.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultAssertionLifetime
	}
	// aud stays a plain string; verifiers of the legacy format reject arrays.
	payload := jwt.MapClaims{
		"aud": claims.Audience,
		"iat": issued.Unix(),
		"exp": issued.Add(lifetime).Unix(),
	}
	if claims.Issuer != "" {
		payload["iss"] = claims.Issuer
	}
	if claims.Email != "" {
		payload["principal"] = map[string]string{"email": claims.Email}
	}
	token := jwt.NewWithClaims(signingMethod{alg: kp.Algorithm()}, payload)
	signed, err := token.SignedString(kp)
	if err != nil {
		return "", fmt.Errorf("minting assertion: %w", err)
	}
	return signed, nil
}

// signingMethod adapts a KeyPair to jwt.SigningMethod.
type signingMethod struct {
	alg string
}

func (m signingMethod) Alg() string {
	return m.alg
}

func (m signingMethod) Sign(signingString string, key interface{}) (string, error) {
	kp, ok := key.(KeyPair)
	if !ok {
		return "", jwt.ErrInvalidKeyType
	}
	sig, err := kp.Sign([]byte(signingString))
	if err != nil {
		return "", err
	}
	return jwt.EncodeSegment(sig), nil
}

func (m signingMethod) Verify(_, _ string, key interface{}) error {
	kp, ok := key.(KeyPair)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	_, err := kp.VerifyMessage(nil, nil)
	return err
}
