package compileservice

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/semlogic/logic"
)

// Requester is the subset of *nats.Conn the client uses.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Client sends compile requests to a running service.
type Client struct {
	conn    Requester
	subject string
}

// NewClient creates a client for subject. An empty subject selects the
// default.
func NewClient(conn Requester, subject string) *Client {
	if subject == "" {
		subject = DefaultConfig().Subject
	}
	return &Client{conn: conn, subject: subject}
}

// Compile sends req and waits for the reply. A remote compile failure is
// returned as a *RemoteError.
func (c *Client) Compile(ctx context.Context, req Request) (*logic.CompilerOutput, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode compile request: %w", err)
	}

	msg, err := c.conn.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		return nil, fmt.Errorf("compile request: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("decode compile reply: %w", err)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	if resp.Output == nil {
		return nil, fmt.Errorf("compile reply has no output")
	}
	return resp.Output, nil
}
