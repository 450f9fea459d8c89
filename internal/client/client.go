// Package client is a Go client for the docstore wire protocol.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/maruel/docstore/internal/models"
)

// Client is one connection to a docstore server. Requests are serialized;
// it is safe for concurrent use.
type Client struct {
	mu     sync.Mutex
	c      net.Conn
	r      *bufio.Reader
	token  string
	// broken is set after a transport failure; the stream may hold part of
	// an unread reply so the connection is closed.
	broken error
}

// ErrBroken is returned by requests made after a transport failure.
var ErrBroken = errors.New("connection broken by an earlier error")

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{c: c, r: bufio.NewReader(c)}, nil
}

// SetToken sets the token sent with every subsequent request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Do sends req and waits for its response. The client token is used when
// req.Token is empty.
//
// An error is returned only for transport failures; error responses from the
// server are returned as a Response.
func (c *Client) Do(ctx context.Context, req *models.Request) (*models.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.Token == "" && c.token != "" {
		r := *req
		r.Token = c.token
		req = &r
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.roundTrip(ctx, append(b, '\n'))
}

// Raw sends one line as is and returns the decoded response.
func (c *Client) Raw(ctx context.Context, line []byte) (*models.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(ctx, append(bytes.TrimRight(line, "\r\n"), '\n'))
}

func (c *Client) roundTrip(ctx context.Context, line []byte) (*models.Response, error) {
	if c.broken != nil {
		return nil, fmt.Errorf("%w: %w", ErrBroken, c.broken)
	}
	deadline, _ := ctx.Deadline()
	if err := c.c.SetDeadline(deadline); err != nil {
		return nil, c.fail(ctx, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = c.c.SetDeadline(time.Now()) })
	defer stop()
	if _, err := c.c.Write(line); err != nil {
		return nil, c.fail(ctx, err)
	}
	b, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	return decodeResponse(b)
}

// fail closes the connection after a transport error.
func (c *Client) fail(ctx context.Context, err error) error {
	err = c.ctxErr(ctx, err)
	c.broken = err
	_ = c.c.Close()
	return err
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return err
}

func decodeResponse(b []byte) (*models.Response, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var resp models.Response
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// Insert stores doc in db/coll.
func (c *Client) Insert(ctx context.Context, db, coll string, doc any) (*models.Response, error) {
	data, err := raw(doc)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &models.Request{Database: db, Collection: coll, Operation: models.OpInsert, Data: data})
}

// Find returns the documents of db/coll matching query.
func (c *Client) Find(ctx context.Context, db, coll string, query any) (*models.Response, error) {
	q, err := raw(query)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &models.Request{Database: db, Collection: coll, Operation: models.OpFind, Query: q})
}

// Delete removes the documents of db/coll matching query.
func (c *Client) Delete(ctx context.Context, db, coll string, query any) (*models.Response, error) {
	q, err := raw(query)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, &models.Request{Database: db, Collection: coll, Operation: models.OpDelete, Query: q})
}

// Drop removes db/coll.
func (c *Client) Drop(ctx context.Context, db, coll string) (*models.Response, error) {
	return c.Do(ctx, &models.Request{Database: db, Collection: coll, Operation: models.OpDrop})
}

// Close says goodbye to the server and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return nil
	}
	_ = c.c.SetWriteDeadline(time.Now().Add(time.Second))
	_, werr := c.c.Write([]byte("exit\n"))
	return errors.Join(werr, c.c.Close())
}

// raw converts v to JSON. Strings and byte slices are taken as JSON text.
func raw(v any) (json.RawMessage, error) {
	switch t := v.(type) {
	case json.RawMessage:
		return t, nil
	case []byte:
		return json.RawMessage(t), nil
	case string:
		return json.RawMessage(t), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return b, nil
}
