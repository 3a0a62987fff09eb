package account

import (
	"context"
	"math/big"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/telekom/account-client/pkg/account/browserid"
)

const (
	testServer   = "https://accounts.example.com"
	testClientID = "3c49430b43dfba77"
	testRedirect = "https://accounts.example.com/oauth/success/3c49430b43dfba77"
)

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func testConfig() Config {
	return Config{
		AuthorizationServer: testServer,
		ClientID:            testClientID,
		RedirectURI:         testRedirect,
		Scopes:              []string{"profile", "https://identity.mozilla.com/apps/oldsync"},
	}
}

type recordingPersister struct {
	mu        sync.Mutex
	snapshots [][]byte
	err       error
}

func (p *recordingPersister) Save(snapshot []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, append([]byte(nil), snapshot...))
	return p.err
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

func (p *recordingPersister) last(t *testing.T) []byte {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.snapshots, "nothing was persisted")
	return p.snapshots[len(p.snapshots)-1]
}

type fakeExchanger struct {
	mu         sync.Mutex
	result     *ExchangeResult
	err        error
	refreshed  *Session
	refreshErr error

	requests     []ExchangeRequest
	refreshCalls int
}

func (f *fakeExchanger) ExchangeCode(_ context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeExchanger) RefreshSession(_ context.Context, _ Config, _ Session) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshed, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	batch *CommandBatch
	err   error
	since []int64
}

func (f *fakeFetcher) FetchCommands(_ context.Context, _ Config, _ Session, since int64) (*CommandBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = append(f.since, since)
	return f.batch, f.err
}

func goodExchange() *fakeExchanger {
	return &fakeExchanger{result: &ExchangeResult{
		Session: Session{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			TokenType:    "bearer",
			Expiry:       testNow.Add(time.Hour),
			Keys:         "eyJrZXlzIjp0cnVlfQ",
		},
		Profile: Profile{UID: "uid-1", Email: "alice@example.com"},
	}}
}

// testKeyPair is a structurally valid 1024-bit key. It is not secure.
func testKeyPair(t *testing.T) browserid.KeyPair {
	t.Helper()
	p := new(big.Int).Lsh(big.NewInt(1), 1023)
	p.Add(p, big.NewInt(1))
	g := big.NewInt(2)
	x := big.NewInt(4242)
	y := new(big.Int).Exp(g, x, p)
	kp, err := browserid.NewDSAKeyPair(g, p, big.NewInt(7919), x, y)
	require.NoError(t, err)
	return kp
}

func newTestAccount(t *testing.T, opts ...Option) *Account {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	a, err := New(testConfig(), opts...)
	require.NoError(t, err)
	return a
}

func stateOf(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

// authenticate runs a full flow with the account's exchanger.
func authenticate(t *testing.T, a *Account) {
	t.Helper()
	authURL, err := a.BeginAuthorizationFlow(nil, true)
	require.NoError(t, err)
	require.NoError(t, a.CompleteAuthorizationFlow(context.Background(), "goodcode", stateOf(t, authURL)))
	require.Equal(t, PhaseAuthenticated, a.Phase())
}
