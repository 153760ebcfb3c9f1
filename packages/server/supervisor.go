// Package server accepts client connections on a transport and runs one
// handler goroutine per connection against the shared engine. it also
// provides the admin HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vogtb/sheetd/packages/logging"
	"github.com/vogtb/sheetd/packages/metrics"
	"github.com/vogtb/sheetd/packages/transport"
)

// Handler processes one protocol message and returns the reply, if any
type Handler interface {
	Handle(ctx context.Context, msg string) (transport.Reply, bool)
}

// RateLimit bounds the messages per second a single connection may send.
// a zero PerSecond disables the limit.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

// Supervisor accepts connections from one listener
type Supervisor struct {
	listener transport.Listener
	handler  Handler
	limit    RateLimit
	logger   *logging.Logger
}

func NewSupervisor(listener transport.Listener, handler Handler, limit RateLimit, logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Supervisor{
		listener: listener,
		handler:  handler,
		limit:    limit,
		logger:   logger.With("transport", listener.Kind(), "addr", listener.Addr()),
	}
}

// Serve accepts connections until the listener is closed, then waits for
// every connection handler to return. cancelling ctx closes the listener
// and every open connection. the result is nil unless Accept failed for a
// reason other than the listener being closed.
func (s *Supervisor) Serve(ctx context.Context) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() {
		if err := s.listener.Close(); err != nil {
			s.logger.Debug("closing listener", "error", err)
		}
	})
	defer stop()

	s.logger.Info("accepting connections")

	var wg sync.WaitGroup
	var acceptErr error
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, transport.ErrListenerClosed) && ctx.Err() == nil {
				acceptErr = fmt.Errorf("accept on %s: %w", s.listener.Addr(), err)
				s.logger.Error("accept failed", "error", err)
				cancel()
			}
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(connCtx, conn)
		}()
	}

	wg.Wait()
	s.logger.Info("stopped accepting connections")
	return acceptErr
}

// serveConn reads messages from conn in order until the client hangs up,
// a read or write fails, or ctx is cancelled
func (s *Supervisor) serveConn(ctx context.Context, conn transport.Conn) {
	kind := s.listener.Kind()
	logger := s.logger.With("conn_id", uuid.NewString(), "remote", conn.RemoteAddr())

	metrics.ConnectionsTotal.WithLabelValues(kind).Inc()
	metrics.ConnectionsActive.WithLabelValues(kind).Inc()
	defer metrics.ConnectionsActive.WithLabelValues(kind).Dec()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	var limiter *rate.Limiter
	if s.limit.PerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.limit.PerSecond), max(s.limit.Burst, 1))
	}

	logger.Info("connection opened")
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				logger.Info("connection closed")
			} else {
				logger.Warn("read failed", "error", err)
			}
			return
		}

		if limiter != nil && !limiter.Allow() {
			metrics.RateLimited.Inc()
			if err := limiter.Wait(ctx); err != nil {
				logger.Info("connection closed while rate limited")
				return
			}
		}

		reply, ok := s.handler.Handle(ctx, msg)
		if !ok {
			continue
		}
		if err := conn.WriteMessage(reply); err != nil {
			logger.Warn("write failed", "error", err)
			return
		}
	}
}
