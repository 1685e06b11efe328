package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/colivhub/colivrt/internal/protocol"
)

const maxPollBodySize = 1 << 20

// pollingConn emulates a session with HTTP long-polling: GET receives frames,
// POST sends frames, DELETE ends the session.
type pollingConn struct {
	mu       sync.RWMutex
	writeMu  sync.Mutex
	client   *http.Client
	endpoint string
	header   http.Header
	sid      string
	closed   bool
	ctx      context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
	pollWait time.Duration
}

func dialPolling(ctx context.Context, opts Options) (conn, error) {
	endpoint, err := pollingURL(opts.URL, opts.Path)
	if err != nil {
		return nil, err
	}
	handshake, err := encodeHandshake(opts.Token)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(handshake))
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, opts.Header)
	req.Header.Set("Content-Type", "application/json")
	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPollBodySize))
	if err != nil {
		return nil, err
	}
	first, err := protocol.DecodeFrame(body)
	if err != nil {
		return nil, fmt.Errorf("polling handshake: status %d: %w", resp.StatusCode, err)
	}
	sid, err := handshakeResult(first)
	if err != nil {
		return nil, err
	}
	if sid == "" {
		return nil, fmt.Errorf("%w: connect without sid", ErrUnexpectedFrame)
	}
	connCtx, cancel := context.WithCancel(context.Background())
	return &pollingConn{
		client:   opts.HTTPClient,
		endpoint: endpoint,
		header:   opts.Header,
		sid:      sid,
		ctx:      connCtx,
		cancel:   cancel,
		timeout:  opts.WriteTimeout,
		pollWait: opts.PollTimeout,
	}, nil
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func (c *pollingConn) Name() string {
	return NamePolling
}

func (c *pollingConn) SID() string {
	return c.sid
}

func (c *pollingConn) sessionURL() string {
	return c.endpoint + "?sid=" + url.QueryEscape(c.sid)
}

func (c *pollingConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *pollingConn) Write(frame []byte) error {
	if c.isClosed() {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	body := make([]byte, 0, len(frame)+2)
	body = append(body, '[')
	body = append(body, frame...)
	body = append(body, ']')

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sessionURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	copyHeader(req.Header, c.header)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("polling write: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *pollingConn) ReadLoop(onFrame func(protocol.Frame)) error {
	for {
		frames, err := c.poll()
		if err != nil {
			if c.isClosed() {
				return ErrClosed
			}
			return err
		}
		for _, f := range frames {
			if f.Event == protocol.EventDisconnect {
				return errServerDisconnect
			}
			onFrame(f)
		}
	}
}

func (c *pollingConn) poll() ([]protocol.Frame, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.pollWait)
	defer cancel()
	frames, err := c.doPoll(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, errPingTimeout
	}
	return frames, err
}

func (c *pollingConn) doPoll(ctx context.Context) ([]protocol.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sessionURL(), nil)
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, c.header)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	case http.StatusNotFound, http.StatusGone:
		return nil, errTransportClose
	default:
		return nil, fmt.Errorf("polling read: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPollBodySize))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeFrames(body)
}

func (c *pollingConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), closeFrameWait)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.sessionURL(), nil)
	if err != nil {
		return err
	}
	copyHeader(req.Header, c.header)
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
	_ = resp.Body.Close()
	return nil
}
