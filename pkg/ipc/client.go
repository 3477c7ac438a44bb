package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/CTAG07/Neutral/pkg/schema"
	"github.com/CTAG07/Neutral/pkg/templating"
)

// Client renders templates on a remote engine. Each render opens its own
// connection, so a Client is safe for concurrent use.
type Client struct {
	config Config
	dialer net.Dialer
}

var _ templating.Renderer = (*Client)(nil)

// NewClient creates a client. A nil config uses DefaultConfig.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := config.withDefaults()
	return &Client{
		config: *cfg,
		dialer: net.Dialer{Timeout: cfg.TimeoutDuration()},
	}
}

// Config returns the effective client configuration.
func (c *Client) Config() Config {
	return c.config
}

// Render sends req to the engine and waits for the result. Connection and
// protocol failures, as well as KO responses, are returned as an
// *templating.EngineError.
func (c *Client) Render(ctx context.Context, req templating.Request) (*templating.Result, error) {
	if req.Schema == nil {
		return nil, &templating.EngineError{Path: req.Name(), Err: fmt.Errorf("%w: no schema", templating.ErrMalformedSchema)}
	}
	rec, err := c.request(req)
	if err != nil {
		return nil, &templating.EngineError{Path: req.Name(), Err: err}
	}

	resp, err := c.roundTrip(ctx, rec)
	if err != nil {
		return nil, &templating.EngineError{Path: req.Name(), Err: fmt.Errorf("%w: %w", templating.ErrRemote, err)}
	}

	var w wireResult
	if err = json.Unmarshal(resp.Content1, &w); err != nil {
		return nil, &templating.EngineError{Path: req.Name(), Err: fmt.Errorf("%w: invalid result object: %v", templating.ErrRemote, err)}
	}
	switch resp.Control {
	case CtrlStatusOK:
		return w.result(resp.Content2), nil
	case CtrlStatusKO:
		return nil, w.failureErr(req.Name())
	default:
		return nil, &templating.EngineError{Path: req.Name(), Err: fmt.Errorf("%w: unknown control byte %d", templating.ErrRemote, resp.Control)}
	}
}

// request encodes req as a parse-template record.
func (c *Client) request(req templating.Request) (*Record, error) {
	rec := &Record{Control: CtrlParseTemplate}

	var err error
	if c.config.SchemaFormat == "msgpack" {
		rec.Format1 = FormatMsgpack
		rec.Content1, err = req.Schema.MarshalMsgpack()
	} else {
		rec.Format1 = FormatJSON
		rec.Content1, err = req.Schema.MarshalJSON()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrMalformed, err)
	}

	if req.Source != "" {
		rec.Format2 = FormatText
		rec.Content2 = []byte(req.Source)
	} else {
		rec.Format2 = FormatPath
		rec.Content2 = []byte(req.Path)
	}
	return rec, nil
}

func (c *Client) roundTrip(ctx context.Context, rec *Record) (*Record, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.config.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.config.Addr(), err)
	}
	defer func(conn net.Conn) {
		_ = conn.Close()
	}(conn)

	deadline := time.Now().Add(c.config.TimeoutDuration())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err = conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	// Unblock reads and writes as soon as ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err = rec.WriteTo(conn); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	resp, err := ReadRecord(bufio.NewReaderSize(conn, c.config.BufferSize), c.config.MaxRecordSize)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return resp, nil
}
