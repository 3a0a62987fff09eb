package account

import (
	"context"
)

// Persister receives a complete snapshot after every successful mutation. It is
// called with the account lock held and must not call back into the Account.
type Persister interface {
	Save(snapshot []byte) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(snapshot []byte) error

func (f PersisterFunc) Save(snapshot []byte) error {
	return f(snapshot)
}

// ExchangeRequest carries everything needed to redeem an authorization code.
type ExchangeRequest struct {
	Config       Config
	Code         string
	CodeVerifier string
	Scopes       []string
	WantsKeys    bool
}

// ExchangeResult is the outcome of a successful code exchange.
type ExchangeResult struct {
	Session Session
	Profile Profile
}

// TokenExchanger talks to the authorization server's token endpoint.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error)
	RefreshSession(ctx context.Context, cfg Config, session Session) (*Session, error)
}

// CommandBatch is one page of device commands.
type CommandBatch struct {
	Commands []DeviceCommand
	// Index is the highest index the server has handed out.
	Index int64
}

// CommandFetcher retrieves queued device commands newer than since. It returns
// an error wrapping ErrNotFound when the queue does not exist.
type CommandFetcher interface {
	FetchCommands(ctx context.Context, cfg Config, session Session, since int64) (*CommandBatch, error)
}
