package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/telekom/account-client/pkg/account"
	"github.com/telekom/account-client/pkg/acctl/config"
)

// Status is the printable view of one account.
type Status struct {
	Account      string    `json:"account" yaml:"account"`
	Server       string    `json:"server" yaml:"server"`
	Phase        string    `json:"phase" yaml:"phase"`
	UID          string    `json:"uid,omitempty" yaml:"uid,omitempty"`
	Email        string    `json:"email,omitempty" yaml:"email,omitempty"`
	DisplayName  string    `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	DeviceID     string    `json:"deviceId,omitempty" yaml:"deviceId,omitempty"`
	Scopes       []string  `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero" yaml:"expiry,omitempty"`
	AuthorizedAt time.Time `json:"authorizedAt,omitzero" yaml:"authorizedAt,omitempty"`
	HasKeys      bool      `json:"hasKeys" yaml:"hasKeys"`
	CommandIndex int64     `json:"commandIndex" yaml:"commandIndex"`
	KeyPairs     []string  `json:"keyPairs,omitempty" yaml:"keyPairs,omitempty"`
}

// NewStatus collects the non-secret state of a.
func NewStatus(name string, a *account.Account) Status {
	profile := a.Profile()
	s := Status{
		Account:     name,
		Server:      a.Config().AuthorizationServer,
		Phase:       string(a.Phase()),
		UID:         profile.UID,
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
		DeviceID:    profile.DeviceID,
		KeyPairs:    a.KeyPairTags(),
	}
	if info, ok := a.SessionInfo(); ok {
		s.Scopes = info.Scopes
		s.Expiry = info.Expiry
		s.AuthorizedAt = info.AuthorizedAt
		s.HasKeys = info.HasKeys
		s.CommandIndex = info.CommandIndex
	}
	return s
}

func WriteStatusTable(w io.Writer, s Status) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	rows := [][2]string{
		{"ACCOUNT", s.Account},
		{"SERVER", s.Server},
		{"PHASE", s.Phase},
		{"EMAIL", orDash(s.Email)},
		{"UID", orDash(s.UID)},
		{"DEVICE", orDash(s.DeviceID)},
		{"DISPLAY_NAME", orDash(s.DisplayName)},
		{"EXPIRES", formatTime(s.Expiry)},
		{"KEYS", fmt.Sprintf("%v", s.HasKeys)},
		{"KEY_PAIRS", orDash(strings.Join(s.KeyPairs, ","))},
	}
	for _, row := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
	}
	_ = tw.Flush()
}

func WriteAccountTable(w io.Writer, accounts []config.Account, current string) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CURRENT\tNAME\tSERVER\tCLIENT_ID\tSCOPES")
	for _, a := range accounts {
		marker := ""
		if a.Name == current {
			marker = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", marker, a.Name, a.Server, a.ClientID, orDash(strings.Join(a.Scopes, " ")))
	}
	_ = tw.Flush()
}

func WriteCommandTable(w io.Writer, commands []account.DeviceCommand) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "INDEX\tCOMMAND\tSENDER\tPAYLOAD")
	for _, c := range commands {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.Index, c.Name, orDash(c.Sender), truncate(string(c.Payload), 60))
	}
	_ = tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if s == "" {
		return "-"
	}
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
