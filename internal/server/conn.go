package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/maruel/docstore/internal/errors"
	"github.com/maruel/docstore/internal/models"
)

// exitCommand closes the connection when received as a whole line.
const exitCommand = "exit"

// busyTimeout bounds the write of the BUSY reply.
const busyTimeout = time.Second

// drainTimeout bounds how long input is discarded before closing.
const drainTimeout = 250 * time.Millisecond

type conn struct {
	s      *Server
	c      net.Conn
	id     string
	remote string
	ip     string
	w      *bufio.Writer
	enc    *json.Encoder
}

func newConn(s *Server, c net.Conn) *conn {
	remote := c.RemoteAddr().String()
	ip, _, err := net.SplitHostPort(remote)
	if err != nil {
		ip = remote
	}
	w := bufio.NewWriter(c)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &conn{s: s, c: c, id: uuid.NewString(), remote: remote, ip: ip, w: w, enc: enc}
}

// serveConn runs the request loop of one connection until the client leaves,
// a transport error occurs or the server shuts down.
func (s *Server) serveConn(ctx context.Context, c net.Conn) {
	cn := newConn(s, c)
	defer func() { _ = c.Close() }()
	s.opts.Metrics.connOpened()
	defer s.opts.Metrics.connClosed()
	slog.InfoContext(ctx, "Client connected", "conn", cn.id, "remote", cn.remote)
	start := time.Now()
	n, err := cn.loop(ctx)
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		slog.InfoContext(ctx, "Client disconnected", "conn", cn.id, "remote", cn.remote, "count", n, "dur", time.Since(start))
	default:
		slog.WarnContext(ctx, "Connection dropped", "conn", cn.id, "remote", cn.remote, "count", n, "err", err)
	}
}

// loop returns the number of requests served and the error that ended the
// connection, nil when the client sent exit.
func (cn *conn) loop(ctx context.Context) (int, error) {
	sc := bufio.NewScanner(cn.c)
	sc.Buffer(make([]byte, 0, min(4096, cn.s.opts.MaxRequestBytes+1)), cn.s.opts.MaxRequestBytes+1)
	n := 0
	for {
		if err := cn.deadline(cn.c.SetReadDeadline); err != nil {
			return n, err
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				if errors.Is(err, bufio.ErrTooLong) {
					// The stream cannot be resynchronized.
					_ = cn.write(models.Failure(apierrors.BadRequest("request too large")))
					cn.drain()
				}
				return n, err
			}
			return n, io.EOF
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if string(line) == exitCommand {
			return n, nil
		}
		n++
		if err := cn.write(cn.handle(ctx, line)); err != nil {
			return n, err
		}
	}
}

// drain discards pending input for a short while so that closing the
// connection does not reset it before the client reads the last reply.
func (cn *conn) drain() {
	_ = cn.c.SetReadDeadline(time.Now().Add(drainTimeout))
	_, _ = io.Copy(io.Discard, io.LimitReader(cn.c, int64(4*cn.s.opts.MaxRequestBytes)))
}

func (cn *conn) handle(ctx context.Context, line []byte) *models.Response {
	if l := cn.s.opts.Limiter; l != nil {
		if r := l.Allow(cn.ip); !r.Allowed {
			slog.InfoContext(ctx, "Rate limited", "conn", cn.id, "remote", cn.remote)
			return models.Failure(apierrors.RateLimited(r.RetryAfter))
		}
	}
	return cn.s.d.HandleLine(ctx, line)
}

func (cn *conn) write(resp *models.Response) error {
	if err := cn.deadline(cn.c.SetWriteDeadline); err != nil {
		return err
	}
	if err := cn.enc.Encode(resp); err != nil {
		return err
	}
	return cn.w.Flush()
}

func (cn *conn) deadline(set func(time.Time) error) error {
	if cn.s.opts.IOTimeout <= 0 {
		return nil
	}
	return set(time.Now().Add(cn.s.opts.IOTimeout))
}

// rejectBusy answers a connection that found no free worker, then closes it.
func (s *Server) rejectBusy(ctx context.Context, c net.Conn) {
	defer func() { _ = c.Close() }()
	s.opts.Metrics.connRejected("busy")
	slog.WarnContext(ctx, "Too many connections", "remote", c.RemoteAddr().String(), "limit", s.opts.MaxConnections)
	_ = c.SetWriteDeadline(time.Now().Add(busyTimeout))
	b, err := json.Marshal(models.Failure(apierrors.Busy()))
	if err != nil {
		return
	}
	if _, err := c.Write(append(b, '\n')); err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		slog.DebugContext(ctx, "Failed to send busy reply", "err", err)
	}
}
