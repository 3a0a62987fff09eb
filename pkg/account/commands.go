package account

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/telekom/account-client/pkg/metrics"
)

// refreshSkew is how close to expiry an access token is refreshed.
const refreshSkew = 2 * time.Minute

// AccessToken returns a usable access token, refreshing it first when it is
// about to expire. A refresh is persisted.
func (a *Account) AccessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireAuthenticatedLocked(); err != nil {
		return "", err
	}
	refreshed, err := a.refreshLocked(ctx)
	if err != nil {
		return "", err
	}
	if refreshed {
		if err := a.persistLocked(); err != nil {
			return a.session.AccessToken, err
		}
	}
	return a.session.AccessToken, nil
}

// FetchMissedCommands returns the device commands queued since the last fetch
// and records the new position. A moved position or a refreshed token is
// persisted once.
func (a *Account) FetchMissedCommands(ctx context.Context) ([]DeviceCommand, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireAuthenticatedLocked(); err != nil {
		return nil, err
	}
	if a.fetcher == nil {
		return nil, fmt.Errorf("%w: no command fetcher configured", ErrConfiguration)
	}
	refreshed, err := a.refreshLocked(ctx)
	if err != nil {
		return nil, err
	}

	since := a.session.CommandIndex
	batch, err := a.fetcher.FetchCommands(ctx, a.config.Clone(), *a.session.clone(), since)
	if err != nil {
		if !errors.Is(err, ErrTransport) && !errors.Is(err, ErrNotFound) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		if refreshed {
			// keep the refreshed token even though the fetch failed
			_ = a.persistLocked()
		}
		return nil, err
	}
	if batch == nil {
		batch = &CommandBatch{}
	}

	next := max(batch.Index, since)
	commands := make([]DeviceCommand, 0, len(batch.Commands))
	for _, c := range batch.Commands {
		if c.Index <= since {
			continue
		}
		commands = append(commands, c)
		next = max(next, c.Index)
	}
	slices.SortFunc(commands, func(x, y DeviceCommand) int {
		return cmp.Compare(x.Index, y.Index)
	})

	if next == since && !refreshed {
		return commands, nil
	}
	if next != since {
		a.session.CommandIndex = next
		a.log.Debugw("Device command index advanced", "from", since, "to", next, "received", len(commands))
	}
	if err := a.persistLocked(); err != nil {
		return commands, err
	}
	return commands, nil
}

// SendTab would deliver a tab to another device of the account. Delivery needs
// the recipient's encryption keys, which this client does not manage.
func (a *Account) SendTab(_ context.Context, targetDeviceID, title, uri string) error {
	return fmt.Errorf("%w: send tab to %s", ErrUnsupported, targetDeviceID)
}

func (a *Account) requireAuthenticatedLocked() error {
	if a.phase != PhaseAuthenticated || a.session == nil {
		return fmt.Errorf("%w: account is %s", ErrNotAuthenticated, a.phase)
	}
	return nil
}

// refreshLocked swaps in a fresh access token when the current one is about to
// expire. It reports whether the session changed; persisting is left to the
// caller so a call persists at most once.
func (a *Account) refreshLocked(ctx context.Context) (bool, error) {
	if !a.session.expiresWithin(a.now(), refreshSkew) {
		return false, nil
	}
	if a.session.RefreshToken == "" {
		return false, fmt.Errorf("%w: token expired and no refresh token available", ErrNotAuthenticated)
	}
	if a.exchanger == nil {
		return false, fmt.Errorf("%w: no token exchanger configured", ErrConfiguration)
	}
	refreshed, err := a.exchanger.RefreshSession(ctx, a.config.Clone(), *a.session.clone())
	if err == nil && refreshed == nil {
		err = fmt.Errorf("%w: empty refresh result", ErrTransport)
	}
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return false, fmt.Errorf("failed to refresh token: %w", err)
	}
	metrics.TokenRefreshes.WithLabelValues("success").Inc()

	previous := a.session
	next := refreshed.clone()
	if next.RefreshToken == "" {
		next.RefreshToken = previous.RefreshToken
	}
	if next.IDToken == "" {
		next.IDToken = previous.IDToken
	}
	if next.Keys == "" {
		next.Keys = previous.Keys
	}
	if len(next.Scopes) == 0 {
		next.Scopes = slices.Clone(previous.Scopes)
	}
	next.CommandIndex = previous.CommandIndex
	next.AuthorizedAt = previous.AuthorizedAt
	a.session = next
	a.log.Debugw("Access token refreshed", "expiry", next.Expiry)
	return true, nil
}
