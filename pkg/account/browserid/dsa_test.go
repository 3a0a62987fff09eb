package browserid

import (
	"crypto/dsa" //nolint:staticcheck // SA1019: verifying signatures made by the legacy scheme
	"crypto/sha256"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// syntheticKey returns a structurally valid key whose modulus is exactly bits
// long. It is not secure and only exercises tag derivation and serialization.
func syntheticKey(t *testing.T, bits int) *DSAKeyPair {
	t.Helper()
	p := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	p.Add(p, big.NewInt(1))
	g := big.NewInt(2)
	x := big.NewInt(12345)
	y := new(big.Int).Exp(g, x, p)
	kp, err := NewDSAKeyPair(g, p, big.NewInt(7919), x, y)
	require.NoError(t, err)
	return kp
}

func verifyDER(t *testing.T, kp *DSAKeyPair, message, sig []byte) bool {
	t.Helper()
	var r, s big.Int
	input := cryptobyte.String(sig)
	var inner cryptobyte.String
	require.True(t, input.ReadASN1(&inner, asn1.SEQUENCE))
	require.True(t, inner.ReadASN1Integer(&r))
	require.True(t, inner.ReadASN1Integer(&s))
	require.True(t, inner.Empty())
	digest := sha256.Sum256(message)
	hashed := digest[:]
	if n := (kp.key.Q.BitLen() + 7) / 8; len(hashed) > n {
		hashed = hashed[:n]
	}
	pub := kp.PublicKey()
	return dsa.Verify(&pub, hashed, &r, &s)
}

func TestAlgorithmTagFromKeyLength(t *testing.T) {
	for _, tc := range []struct {
		bits int
		want string
	}{
		{1024, "DS128"},
		{2048, "DS256"},
		{3072, "DS384"},
	} {
		t.Run(tc.want, func(t *testing.T) {
			kp := syntheticKey(t, tc.bits)
			assert.Equal(t, tc.bits, kp.Bits())
			assert.Equal(t, tc.want, kp.Algorithm())
		})
	}
}

func TestGenerateDSA(t *testing.T) {
	kp, err := GenerateDSA(1024)
	require.NoError(t, err)
	assert.Equal(t, "DS128", kp.Algorithm())

	sig, err := kp.Sign([]byte("hello"))
	require.NoError(t, err)
	assert.True(t, verifyDER(t, kp, []byte("hello"), sig))
	assert.False(t, verifyDER(t, kp, []byte("goodbye"), sig))
}

func TestGenerateDSA2048(t *testing.T) {
	if testing.Short() {
		t.Skip("2048-bit parameter generation is slow")
	}
	kp, err := GenerateDSA(2048)
	require.NoError(t, err)
	assert.Equal(t, "DS256", kp.Algorithm())

	data, err := json.Marshal(kp)
	require.NoError(t, err)
	restored, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "DS256", restored.Algorithm())

	wantPub, err := kp.ExportPublic()
	require.NoError(t, err)
	gotPub, err := restored.ExportPublic()
	require.NoError(t, err)
	assert.Equal(t, wantPub, gotPub)

	sig, err := restored.Sign([]byte("fixed message"))
	require.NoError(t, err)
	assert.True(t, verifyDER(t, kp, []byte("fixed message"), sig))
}

func TestGenerateDSAUnsupportedLength(t *testing.T) {
	_, err := GenerateDSA(512)
	require.ErrorIs(t, err, ErrCrypto)
}

func TestSerializeRoundTrip(t *testing.T) {
	kp, err := GenerateDSA(1024)
	require.NoError(t, err)

	data, err := json.Marshal(kp)
	require.NoError(t, err)

	var doc map[string]string
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, field := range []string{"g", "p", "q", "x", "y"} {
		_, ok := new(big.Int).SetString(doc[field], 10)
		assert.True(t, ok, "component %s should be decimal", field)
	}
	assert.Equal(t, "DS", doc["algorithm"])

	restored, err := UnmarshalDSA(data)
	require.NoError(t, err)
	assert.Equal(t, kp.Algorithm(), restored.Algorithm())
	assert.Equal(t, kp.PublicKey().Y, restored.PublicKey().Y)
	assert.Equal(t, kp.PublicKey().P, restored.PublicKey().P)
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	kp := syntheticKey(t, 1024)
	data, err := json.Marshal(kp)
	require.NoError(t, err)
	var doc map[string]string
	require.NoError(t, json.Unmarshal(data, &doc))

	t.Run("missing component", func(t *testing.T) {
		for _, field := range []string{"g", "p", "q", "x", "y"} {
			broken := map[string]string{}
			for k, v := range doc {
				if k != field {
					broken[k] = v
				}
			}
			raw, _ := json.Marshal(broken)
			_, err := Unmarshal(raw)
			require.ErrorIs(t, err, ErrMalformedKey, field)
			assert.Contains(t, err.Error(), "missing component "+field)
		}
	})

	t.Run("not a decimal integer", func(t *testing.T) {
		broken := map[string]string{}
		for k, v := range doc {
			broken[k] = v
		}
		broken["x"] = "0xdeadbeef"
		raw, _ := json.Marshal(broken)
		_, err := Unmarshal(raw)
		require.ErrorIs(t, err, ErrMalformedKey)
	})

	t.Run("inconsistent public component", func(t *testing.T) {
		broken := map[string]string{}
		for k, v := range doc {
			broken[k] = v
		}
		broken["y"] = "42"
		raw, _ := json.Marshal(broken)
		_, err := Unmarshal(raw)
		require.ErrorIs(t, err, ErrMalformedKey)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		_, err := Unmarshal([]byte(`{"algorithm":"RS"}`))
		require.ErrorIs(t, err, ErrMalformedKey)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := Unmarshal([]byte(`{bad`))
		require.ErrorIs(t, err, ErrMalformedKey)
	})
}

func TestUnmarshalAcceptsDocumentWithoutAlgorithm(t *testing.T) {
	kp := syntheticKey(t, 2048)
	data, err := json.Marshal(kp)
	require.NoError(t, err)
	var doc map[string]string
	require.NoError(t, json.Unmarshal(data, &doc))
	delete(doc, "algorithm")
	raw, _ := json.Marshal(doc)

	restored, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, "DS256", restored.Algorithm())
}

func TestExportPublicOmitsPrivateComponent(t *testing.T) {
	kp := syntheticKey(t, 1024)
	pub, err := kp.ExportPublic()
	require.NoError(t, err)
	assert.Equal(t, "DS", pub.Algorithm)

	raw, err := json.Marshal(pub)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.NotContains(t, doc, "x")
	assert.Equal(t, kp.PublicKey().Y.String(), doc["y"])
}

func TestUnsupportedCapabilities(t *testing.T) {
	kp := syntheticKey(t, 1024)

	full, err := kp.ExportFull()
	require.ErrorIs(t, err, ErrUnsupported)
	assert.Nil(t, full)

	ok, err := kp.VerifyMessage([]byte("m"), []byte("sig"))
	require.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, ok)
}

func TestStringHidesKeyMaterial(t *testing.T) {
	kp := syntheticKey(t, 1024)
	assert.Equal(t, "<dsa_key_pair DS128>", kp.String())
}
