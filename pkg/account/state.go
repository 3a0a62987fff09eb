package account

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Phase is the authorization phase of an account.
type Phase string

const (
	PhaseUnauthenticated      Phase = "unauthenticated"
	PhasePendingAuthorization Phase = "pending_authorization"
	PhaseAuthenticated        Phase = "authenticated"
)

func (p Phase) valid() bool {
	switch p {
	case PhaseUnauthenticated, PhasePendingAuthorization, PhaseAuthenticated:
		return true
	}
	return false
}

// PendingAuthorization binds a started flow to its completion. The state token
// is single use.
type PendingAuthorization struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	Scopes       []string  `json:"scopes,omitempty"`
	WantsKeys    bool      `json:"wants_keys,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}

// Session is the credential material obtained from a completed flow.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	// Keys is the opaque derived key bundle returned when keys were requested.
	Keys string `json:"keys,omitempty"`
	// CommandIndex is the index of the last device command handed out.
	CommandIndex int64     `json:"command_index,omitempty"`
	AuthorizedAt time.Time `json:"authorized_at,omitempty"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Scopes = slices.Clone(s.Scopes)
	return &c
}

// expiresWithin reports whether the access token expires inside d. Tokens
// without an expiry never do.
func (s *Session) expiresWithin(now time.Time, d time.Duration) bool {
	return !s.Expiry.IsZero() && s.Expiry.Sub(now) <= d
}

// SessionInfo is the non-secret view of a session.
type SessionInfo struct {
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	HasKeys      bool      `json:"has_keys"`
	CommandIndex int64     `json:"command_index"`
	AuthorizedAt time.Time `json:"authorized_at,omitempty"`
}

// Profile holds account and device attributes.
type Profile struct {
	UID         string `json:"uid,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
}

// DeviceCommand is a server-queued instruction addressed to this device.
type DeviceCommand struct {
	Index   int64           `json:"index"`
	Name    string          `json:"command"`
	Sender  string          `json:"sender,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (c DeviceCommand) String() string {
	return fmt.Sprintf("%s#%d", c.Name, c.Index)
}

// CommandOpenURI is the send-tab command name.
const CommandOpenURI = "https://identity.mozilla.com/cmd/open-uri"
