package account

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/telekom/account-client/pkg/metrics"
)

const stateTokenBytes = 32

// BeginAuthorizationFlow starts an authorization code flow and returns the URL
// the user agent must open. Empty scopes fall back to Config.Scopes. A flow
// that was already pending is replaced.
func (a *Account) BeginAuthorizationFlow(scopes []string, wantsKeys bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.beginLocked(a.config.AuthorizationEndpoint(), nil, scopes, wantsKeys)
}

// BeginPairingFlow starts a flow that is approved from an already signed-in
// device. pairingURL is the URL that device displays; it must live on the
// configured authorization server. Keys are always requested.
func (a *Account) BeginPairingFlow(pairingURL string, scopes []string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pairing, err := url.Parse(pairingURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid pairing url: %v", ErrConfiguration, err)
	}
	server, err := url.Parse(a.config.AuthorizationServer)
	if err != nil {
		return "", fmt.Errorf("%w: invalid authorization server: %v", ErrConfiguration, err)
	}
	if pairing.Host != server.Host {
		return "", fmt.Errorf("%w: pairing url origin %q does not match %q", ErrConfiguration, pairing.Host, server.Host)
	}
	return a.beginLocked(a.config.PairingEndpoint(), pairing, scopes, true)
}

func (a *Account) beginLocked(authURL string, pairing *url.URL, scopes []string, wantsKeys bool) (string, error) {
	if err := a.config.Validate(); err != nil {
		return "", err
	}
	if len(scopes) == 0 {
		scopes = a.config.Scopes
	}
	state, err := randomToken(stateTokenBytes)
	if err != nil {
		return "", err
	}
	verifier, challenge, err := newPKCEPair()
	if err != nil {
		return "", err
	}

	oauthCfg := oauth2.Config{
		ClientID:    a.config.ClientID,
		RedirectURL: a.config.RedirectURI,
		Scopes:      scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: a.config.TokenEndpoint(),
		},
	}
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.AccessTypeOffline,
	}
	if wantsKeys {
		opts = append(opts, oauth2.SetAuthURLParam("keys", "true"))
	}
	authCodeURL := oauthCfg.AuthCodeURL(state, opts...)
	if pairing != nil && pairing.Fragment != "" {
		u, err := url.Parse(authCodeURL)
		if err != nil {
			return "", fmt.Errorf("%w: building pairing url: %v", ErrConfiguration, err)
		}
		u.Fragment = pairing.Fragment
		u.RawFragment = pairing.RawFragment
		authCodeURL = u.String()
	}

	if a.pending != nil {
		a.log.Debugw("Replacing pending authorization flow", "startedAt", a.pending.StartedAt)
	}
	a.pending = &PendingAuthorization{
		State:        state,
		CodeVerifier: verifier,
		Scopes:       slices.Clone(scopes),
		WantsKeys:    wantsKeys,
		StartedAt:    a.now(),
	}
	a.phase = PhasePendingAuthorization
	metrics.AuthorizationFlows.WithLabelValues("begun").Inc()
	a.log.Infow("Authorization flow started", "scopes", scopes, "wantsKeys", wantsKeys)
	return authCodeURL, nil
}

// CompleteAuthorizationFlow redeems code for a session. state must equal the
// token of the pending flow. On exchange failure the flow stays pending so the
// caller may retry with a fresh code.
func (a *Account) CompleteAuthorizationFlow(ctx context.Context, code, state string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return ErrNoPendingFlow
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(a.pending.State)) != 1 {
		metrics.AuthorizationFlows.WithLabelValues("state_mismatch").Inc()
		a.log.Warnw("Authorization completion rejected: state mismatch")
		return ErrStateMismatch
	}
	if a.exchanger == nil {
		return fmt.Errorf("%w: no token exchanger configured", ErrConfiguration)
	}

	result, err := a.exchanger.ExchangeCode(ctx, ExchangeRequest{
		Config:       a.config.Clone(),
		Code:         code,
		CodeVerifier: a.pending.CodeVerifier,
		Scopes:       slices.Clone(a.pending.Scopes),
		WantsKeys:    a.pending.WantsKeys,
	})
	if err != nil {
		metrics.AuthorizationFlows.WithLabelValues("exchange_failed").Inc()
		a.log.Warnw("Authorization code exchange failed", "error", err)
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return err
	}
	if result == nil {
		return fmt.Errorf("%w: empty exchange result", ErrTransport)
	}

	session := result.Session.clone()
	if len(session.Scopes) == 0 {
		session.Scopes = slices.Clone(a.pending.Scopes)
	}
	session.AuthorizedAt = a.now()
	if a.session != nil && a.profile.UID != "" && a.profile.UID == result.Profile.UID {
		session.CommandIndex = max(session.CommandIndex, a.session.CommandIndex)
	}
	a.profile = mergeProfile(a.profile, result.Profile)
	a.session = session
	a.pending = nil
	a.phase = PhaseAuthenticated

	metrics.AuthorizationFlows.WithLabelValues("completed").Inc()
	a.log.Infow("Authorization flow completed", "uid", a.profile.UID, "deviceId", a.profile.DeviceID)
	return a.persistLocked()
}

// DerivedKeys returns the opaque key bundle of the session, if one was issued.
func (a *Account) DerivedKeys() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil || a.session.Keys == "" {
		return "", false
	}
	return a.session.Keys, true
}

func mergeProfile(current, fetched Profile) Profile {
	out := current
	out.UID = fetched.UID
	out.Email = fetched.Email
	if fetched.DisplayName != "" {
		out.DisplayName = fetched.DisplayName
	}
	if fetched.DeviceID != "" {
		out.DeviceID = fetched.DeviceID
	}
	if out.DeviceID == "" {
		out.DeviceID = uuid.NewString()
	}
	return out
}

func newPKCEPair() (string, string, error) {
	verifier, err := randomToken(32)
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

func randomToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("%w: failed to generate random token: %v", ErrCrypto, err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
