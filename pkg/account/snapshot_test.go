package account

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		a := newTestAccount(t)
		data, err := a.Serialize()
		require.NoError(t, err)

		restored, err := Reconstruct(data)
		require.NoError(t, err)
		assert.Equal(t, PhaseUnauthenticated, restored.Phase())
		assert.Equal(t, a.Config(), restored.Config())
	})

	t.Run("pending flow survives restart", func(t *testing.T) {
		a := newTestAccount(t)
		authURL, err := a.BeginAuthorizationFlow(nil, true)
		require.NoError(t, err)
		data, err := a.Serialize()
		require.NoError(t, err)

		restored, err := Reconstruct(data, WithTokenExchanger(goodExchange()))
		require.NoError(t, err)
		assert.Equal(t, PhasePendingAuthorization, restored.Phase())
		require.NoError(t, restored.CompleteAuthorizationFlow(t.Context(), "goodcode", stateOf(t, authURL)))
		assert.Equal(t, PhaseAuthenticated, restored.Phase())
	})

	t.Run("authenticated with keys", func(t *testing.T) {
		a := newTestAccount(t, WithTokenExchanger(goodExchange()))
		require.NoError(t, a.AddKeyPair(testKeyPair(t)))
		authenticate(t, a)
		require.NoError(t, a.SetDisplayName("Bobo device"))

		data, err := a.Serialize()
		require.NoError(t, err)
		restored, err := Reconstruct(data)
		require.NoError(t, err)

		assert.Equal(t, PhaseAuthenticated, restored.Phase())
		assert.Equal(t, a.Profile(), restored.Profile())
		assert.Equal(t, []string{"DS128"}, restored.KeyPairTags())
		wantInfo, _ := a.SessionInfo()
		gotInfo, ok := restored.SessionInfo()
		require.True(t, ok)
		assert.Equal(t, wantInfo, gotInfo)

		again, err := restored.Serialize()
		require.NoError(t, err)
		assert.JSONEq(t, string(data), string(again))
	})
}

func TestSnapshotLayout(t *testing.T) {
	a := newTestAccount(t, WithTokenExchanger(goodExchange()))
	require.NoError(t, a.AddKeyPair(testKeyPair(t)))
	authenticate(t, a)

	data, err := a.Serialize()
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.JSONEq(t, `1`, string(doc["schema_version"]))
	assert.JSONEq(t, `"authenticated"`, string(doc["phase"]))
	assert.NotContains(t, doc, "pending")
	require.Contains(t, doc, "key_pairs")

	var keys map[string]map[string]string
	require.NoError(t, json.Unmarshal(doc["key_pairs"], &keys))
	require.Contains(t, keys, "DS128")
	assert.Equal(t, "DS", keys["DS128"]["algorithm"])
	for _, field := range []string{"g", "p", "q", "x", "y"} {
		assert.NotEmpty(t, keys["DS128"][field], field)
	}
}

func TestReconstructTolerance(t *testing.T) {
	t.Run("unknown fields ignored", func(t *testing.T) {
		a, err := Reconstruct([]byte(`{
			"schema_version": 1,
			"config": {"authorization_server":"https://accounts.example.com","client_id":"3c49430b43dfba77","redirect_uri":"https://accounts.example.com/oauth/success/3c49430b43dfba77","future":true},
			"phase": "unauthenticated",
			"experiments": {"a": 1}
		}`))
		require.NoError(t, err)
		assert.Equal(t, testClientID, a.Config().ClientID)
	})

	t.Run("missing schema version and phase", func(t *testing.T) {
		a, err := Reconstruct([]byte(`{
			"config": {"authorization_server":"https://accounts.example.com","client_id":"c","redirect_uri":"https://accounts.example.com/cb"},
			"session": {"access_token":"tok"}
		}`))
		require.NoError(t, err)
		assert.Equal(t, PhaseAuthenticated, a.Phase())
	})

	t.Run("invalid config is accepted", func(t *testing.T) {
		a, err := Reconstruct([]byte(`{"config":{}}`))
		require.NoError(t, err)
		assert.Equal(t, PhaseUnauthenticated, a.Phase())
	})
}

func TestReconstructRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `not json`},
		{"future schema", `{"schema_version":99,"config":{}}`},
		{"unknown phase", `{"config":{},"phase":"confused"}`},
		{"authenticated without session", `{"config":{},"phase":"authenticated"}`},
		{"pending without flow", `{"config":{},"phase":"pending_authorization"}`},
		{"unauthenticated with session", `{"config":{},"phase":"unauthenticated","session":{"access_token":"x"}}`},
		{"bad key pair", `{"config":{},"key_pairs":{"DS128":{"algorithm":"DS","g":"x"}}}`},
		{"key pair under wrong tag", `{"config":{},"key_pairs":{"DS256":` + keyDoc(t) + `}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Reconstruct([]byte(tc.data))
			require.ErrorIs(t, err, ErrMalformedSnapshot)
		})
	}
}

func keyDoc(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(testKeyPair(t))
	require.NoError(t, err)
	return string(data)
}
