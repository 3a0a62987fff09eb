package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/telekom/account-client/pkg/account"
)

type commandsResponse struct {
	Index    int64            `json:"index"`
	Last     bool             `json:"last"`
	Messages []commandMessage `json:"messages"`
}

type commandMessage struct {
	Index int64 `json:"index"`
	Data  struct {
		Command string          `json:"command"`
		Sender  string          `json:"sender"`
		Payload json.RawMessage `json:"payload"`
	} `json:"data"`
}

// FetchCommands lists the device commands queued after since. A missing queue
// is reported as account.ErrNotFound.
func (c *Client) FetchCommands(ctx context.Context, cfg account.Config, session account.Session, since int64) (*account.CommandBatch, error) {
	endpoint, err := url.Parse(cfg.CommandsEndpoint())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid commands endpoint: %v", account.ErrConfiguration, err)
	}
	query := endpoint.Query()
	query.Set("index", strconv.FormatInt(since, 10))
	endpoint.RawQuery = query.Encode()

	var resp commandsResponse
	if err := c.getJSON(ctx, "commands", endpoint.String(), session.AccessToken, &resp); err != nil {
		return nil, err
	}
	batch := &account.CommandBatch{Index: resp.Index, Commands: make([]account.DeviceCommand, 0, len(resp.Messages))}
	for _, msg := range resp.Messages {
		batch.Commands = append(batch.Commands, account.DeviceCommand{
			Index:   msg.Index,
			Name:    msg.Data.Command,
			Sender:  msg.Data.Sender,
			Payload: msg.Data.Payload,
		})
	}
	c.log.Debugw("Fetched device commands", "since", since, "index", resp.Index, "count", len(batch.Commands), "last", resp.Last)
	return batch, nil
}
