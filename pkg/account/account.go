package account

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/account-client/pkg/account/browserid"
	"github.com/telekom/account-client/pkg/metrics"
)

// Account is the mutable root of the client. The zero value is not usable; use
// New or Reconstruct.
type Account struct {
	mu sync.Mutex

	config   Config
	phase    Phase
	pending  *PendingAuthorization
	session  *Session
	profile  Profile
	keyPairs map[string]browserid.KeyPair

	persister Persister
	exchanger TokenExchanger
	fetcher   CommandFetcher
	generate  func(bits int) (browserid.KeyPair, error)
	now       func() time.Time
	log       *zap.SugaredLogger
}

// Option configures an Account.
type Option func(*Account)

// WithPersister registers the snapshot sink. Without one persistence is a
// no-op and callers must Serialize themselves.
func WithPersister(p Persister) Option {
	return func(a *Account) {
		a.persister = p
	}
}

func WithTokenExchanger(e TokenExchanger) Option {
	return func(a *Account) {
		a.exchanger = e
	}
}

func WithCommandFetcher(f CommandFetcher) Option {
	return func(a *Account) {
		a.fetcher = f
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(a *Account) {
		if log != nil {
			a.log = log
		}
	}
}

// WithKeyGenerator replaces DSA generation in EnsureKeyPair.
func WithKeyGenerator(generate func(bits int) (browserid.KeyPair, error)) Option {
	return func(a *Account) {
		if generate != nil {
			a.generate = generate
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Account) {
		if now != nil {
			a.now = now
		}
	}
}

func newAccount(cfg Config, opts []Option) *Account {
	a := &Account{
		config:   cfg.Clone(),
		phase:    PhaseUnauthenticated,
		keyPairs: map[string]browserid.KeyPair{},
		generate: func(bits int) (browserid.KeyPair, error) {
			return browserid.GenerateDSA(bits)
		},
		now: time.Now,
		log: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// New returns an unauthenticated account for cfg.
func New(cfg Config, opts ...Option) (*Account, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newAccount(cfg, opts), nil
}

// RegisterPersister replaces the persister, typically after Reconstruct.
func (a *Account) RegisterPersister(p Persister) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.persister = p
}

func (a *Account) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config.Clone()
}

func (a *Account) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

func (a *Account) Profile() Profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profile
}

// SessionInfo describes the current session without exposing tokens. ok is
// false when the account has no session.
func (a *Account) SessionInfo() (info SessionInfo, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return SessionInfo{}, false
	}
	return SessionInfo{
		TokenType:    a.session.TokenType,
		Expiry:       a.session.Expiry,
		Scopes:       slices.Clone(a.session.Scopes),
		HasKeys:      a.session.Keys != "",
		CommandIndex: a.session.CommandIndex,
		AuthorizedAt: a.session.AuthorizedAt,
	}, true
}

// SetDisplayName renames this device.
func (a *Account) SetDisplayName(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseAuthenticated {
		return fmt.Errorf("%w: cannot set display name while %s", ErrNotAuthenticated, a.phase)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name cannot be empty")
	}
	a.profile.DisplayName = name
	a.log.Infow("Display name set", "deviceId", a.profile.DeviceID)
	return a.persistLocked()
}

// KeyPair returns the key pair registered under tag.
func (a *Account) KeyPair(tag string) (browserid.KeyPair, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kp, ok := a.keyPairs[tag]
	return kp, ok
}

// KeyPairTags lists the registered algorithm tags in sorted order.
func (a *Account) KeyPairTags() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Sorted(maps.Keys(a.keyPairs))
}

// AddKeyPair registers kp under its algorithm tag, replacing any previous key
// with the same tag.
func (a *Account) AddKeyPair(kp browserid.KeyPair) error {
	if kp == nil {
		return fmt.Errorf("%w: key pair is nil", ErrMalformedKey)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keyPairs[kp.Algorithm()] = kp
	a.log.Infow("Identity key pair registered", "algorithm", kp.Algorithm())
	return a.persistLocked()
}

// EnsureKeyPair returns the key pair for a bits-long modulus, generating and
// registering one if needed. Generation runs without the account lock held.
func (a *Account) EnsureKeyPair(bits int) (browserid.KeyPair, error) {
	tag := fmt.Sprintf("DS%d", bits/8)
	if kp, ok := a.KeyPair(tag); ok {
		return kp, nil
	}

	started := a.now()
	kp, err := a.generate(bits)
	if err != nil {
		return nil, err
	}
	a.log.Debugw("Generated identity key pair", "algorithm", kp.Algorithm(), "duration", a.now().Sub(started).String())

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.keyPairs[kp.Algorithm()]; ok {
		return existing, nil
	}
	a.keyPairs[kp.Algorithm()] = kp
	if err := a.persistLocked(); err != nil {
		return kp, err
	}
	return kp, nil
}

// Disconnect forgets the session and any pending flow. Key pairs and the
// device identity are kept.
func (a *Account) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = nil
	a.pending = nil
	a.phase = PhaseUnauthenticated
	a.profile.UID = ""
	a.profile.Email = ""
	a.log.Infow("Account disconnected")
	return a.persistLocked()
}

// Reconfigure points the account at a different server or client. Any pending
// flow is abandoned and the session, which belongs to the old configuration,
// is dropped.
func (a *Account) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending != nil {
		a.log.Infow("Abandoning pending authorization flow", "startedAt", a.pending.StartedAt)
	}
	a.config = cfg.Clone()
	a.pending = nil
	a.session = nil
	a.phase = PhaseUnauthenticated
	a.profile.UID = ""
	a.profile.Email = ""
	return a.persistLocked()
}

// persistLocked hands a snapshot to the persister. Callers hold a.mu and have
// already committed their mutation.
func (a *Account) persistLocked() error {
	if a.persister == nil {
		return nil
	}
	data, err := a.serializeLocked()
	if err != nil {
		metrics.StatePersisted.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := a.persister.Save(data); err != nil {
		metrics.StatePersisted.WithLabelValues("error").Inc()
		a.log.Warnw("Failed to persist account state", "error", err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	metrics.StatePersisted.WithLabelValues("success").Inc()
	return nil
}
