package account

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/telekom/account-client/pkg/account/browserid"
)

// SchemaVersion is the snapshot layout written by Serialize.
const SchemaVersion = 1

type snapshot struct {
	SchemaVersion int                        `json:"schema_version"`
	Config        Config                     `json:"config"`
	Phase         Phase                      `json:"phase,omitempty"`
	Pending       *PendingAuthorization      `json:"pending,omitempty"`
	Session       *Session                   `json:"session,omitempty"`
	Profile       *Profile                   `json:"profile,omitempty"`
	KeyPairs      map[string]json.RawMessage `json:"key_pairs,omitempty"`
}

// Serialize returns the complete account state as JSON. The output contains
// secrets and must be stored accordingly.
func (a *Account) Serialize() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.serializeLocked()
}

func (a *Account) serializeLocked() ([]byte, error) {
	snap := snapshot{
		SchemaVersion: SchemaVersion,
		Config:        a.config.Clone(),
		Phase:         a.phase,
		Session:       a.session.clone(),
	}
	if a.pending != nil {
		pending := *a.pending
		pending.Scopes = slices.Clone(a.pending.Scopes)
		snap.Pending = &pending
	}
	if a.profile != (Profile{}) {
		profile := a.profile
		snap.Profile = &profile
	}
	if len(a.keyPairs) > 0 {
		snap.KeyPairs = make(map[string]json.RawMessage, len(a.keyPairs))
		for _, tag := range slices.Sorted(maps.Keys(a.keyPairs)) {
			doc, err := json.Marshal(a.keyPairs[tag])
			if err != nil {
				return nil, fmt.Errorf("failed to serialize key pair %s: %w", tag, err)
			}
			snap.KeyPairs[tag] = doc
		}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize account: %w", err)
	}
	return data, nil
}

// Reconstruct rebuilds an account from a Serialize snapshot. It performs no
// network access and does not validate the configuration.
func Reconstruct(data []byte, opts ...Option) (*Account, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if snap.SchemaVersion == 0 {
		snap.SchemaVersion = SchemaVersion
	}
	if snap.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrMalformedSnapshot, snap.SchemaVersion)
	}

	phase, err := resolvePhase(snap)
	if err != nil {
		return nil, err
	}

	a := newAccount(snap.Config, opts)
	a.phase = phase
	a.pending = snap.Pending
	a.session = snap.Session
	if snap.Profile != nil {
		a.profile = *snap.Profile
	}
	for tag, doc := range snap.KeyPairs {
		kp, err := browserid.Unmarshal(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: key pair %s: %w", ErrMalformedSnapshot, tag, err)
		}
		if kp.Algorithm() != tag {
			return nil, fmt.Errorf("%w: key pair stored as %s has algorithm %s", ErrMalformedSnapshot, tag, kp.Algorithm())
		}
		a.keyPairs[tag] = kp
	}
	a.log.Debugw("Account reconstructed", "phase", a.phase, "keyPairs", len(a.keyPairs))
	return a, nil
}

func resolvePhase(snap snapshot) (Phase, error) {
	phase := snap.Phase
	if phase == "" {
		switch {
		case snap.Session != nil:
			phase = PhaseAuthenticated
		case snap.Pending != nil:
			phase = PhasePendingAuthorization
		default:
			phase = PhaseUnauthenticated
		}
	}
	if !phase.valid() {
		return "", fmt.Errorf("%w: unknown phase %q", ErrMalformedSnapshot, phase)
	}
	switch phase {
	case PhaseAuthenticated:
		if snap.Session == nil {
			return "", fmt.Errorf("%w: authenticated without a session", ErrMalformedSnapshot)
		}
	case PhasePendingAuthorization:
		if snap.Pending == nil {
			return "", fmt.Errorf("%w: pending without a flow", ErrMalformedSnapshot)
		}
	case PhaseUnauthenticated:
		if snap.Session != nil || snap.Pending != nil {
			return "", fmt.Errorf("%w: unauthenticated with a session or flow", ErrMalformedSnapshot)
		}
	}
	return phase, nil
}
