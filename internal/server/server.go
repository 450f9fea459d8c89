// Package server serves the docstore wire protocol over TCP.
//
// Each connection carries newline delimited JSON: one request object per
// line, answered by one response object per line.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maruel/docstore/internal/server/ipgeo"
	"github.com/maruel/docstore/internal/server/ratelimit"
)

// Options configures a Server.
type Options struct {
	// MaxConnections bounds the number of connections served concurrently.
	MaxConnections int
	// MaxRequestBytes bounds the length of one request line.
	MaxRequestBytes int
	// IOTimeout bounds each read and each write. 0 disables it.
	IOTimeout time.Duration
	// Limiter throttles requests per client IP. Optional.
	Limiter *ratelimit.Limiter
	// Geo rejects connections by country. Optional.
	Geo *ipgeo.Checker
	// Metrics records connection counts. Optional.
	Metrics *Metrics
}

// Server accepts connections and hands each to a bounded pool of workers.
type Server struct {
	d    *Dispatcher
	opts Options

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
}

// New returns a Server executing requests with d.
func New(d *Dispatcher, opts Options) *Server {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 100
	}
	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = 1 << 20
	}
	return &Server{d: d, opts: opts, conns: make(map[net.Conn]struct{})}
}

// Serve accepts connections on ln until ctx is canceled or ln fails.
//
// On return, the listener and every live connection are closed and all
// workers have exited. Cancellation returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var g errgroup.Group
	g.SetLimit(s.opts.MaxConnections)
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	err := s.acceptLoop(ctx, ln, &g)
	_ = ln.Close()
	s.closeAll()
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, g *errgroup.Group) error {
	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return err
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				slog.WarnContext(ctx, "Accept failed, retrying", "err", err, "dur", backoff)
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0
		if !s.admit(ctx, c) {
			_ = c.Close()
			continue
		}
		if !s.track(c) {
			_ = c.Close()
			continue
		}
		if !g.TryGo(func() error {
			defer s.untrack(c)
			s.serveConn(ctx, c)
			return nil
		}) {
			s.untrack(c)
			s.rejectBusy(ctx, c)
		}
	}
}

// admit applies the country admission policy.
func (s *Server) admit(ctx context.Context, c net.Conn) bool {
	if s.opts.Geo == nil {
		return true
	}
	ap, err := netip.ParseAddrPort(c.RemoteAddr().String())
	if err != nil {
		return true
	}
	ok, country := s.opts.Geo.Admit(ap.Addr())
	if !ok {
		s.opts.Metrics.connRejected("geo")
		slog.InfoContext(ctx, "Rejected connection", "remote", c.RemoteAddr().String(), "country", country)
	}
	return ok
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// closeAll closes every live connection, unblocking their workers.
func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for c := range s.conns {
		_ = c.Close()
	}
}

// ActiveConnections returns the number of connections being served.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
