// ABOUTME: Per-connection session state, outbound writes and guaranteed teardown
// ABOUTME: A session is the registry handle for its connection

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/solace-gateway/internal/auth"
	"github.com/2389/solace-gateway/internal/protocol"
)

var (
	errDisconnected = errors.New("transport disconnected")
	errCancelled    = errors.New("cancelled by registry")
	errFlooded      = errors.New("inbound queue full")
)

type session struct {
	c      *Controller
	conn   Conn
	connID string
	logger *slog.Logger
	start  time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc

	state          State
	identity       auth.Identity
	conversationID int64
	registered     bool

	closeCode   int
	closeReason string

	frames     chan []byte
	readerDone chan struct{}

	teardownOnce sync.Once
}

func (c *Controller) newSession(parent context.Context, conn Conn) *session {
	ctx, cancel := context.WithCancelCause(parent)
	connID := uuid.New().String()
	s := &session{
		c:      c,
		conn:   conn,
		connID: connID,
		logger: c.logger.With("conn_id", connID),
		start:  time.Now(),
		ctx:    ctx,
		cancel: cancel,
		state:  StateConnecting,
	}
	s.logger.Debug("connection accepted")
	return s
}

// ConnID implements registry.Handle.
func (s *session) ConnID() string {
	return s.connID
}

// Cancel implements registry.Handle. The session goroutine notices the
// cancelled context and tears down.
func (s *session) Cancel() {
	s.cancel(errCancelled)
}

func (s *session) setState(next State) {
	s.logger.Debug("state change", "from", s.state.String(), "to", next.String())
	s.state = next
}

// closeWith records the close frame teardown will send. The first call wins.
func (s *session) closeWith(code int, reason string) {
	if s.closeCode != 0 {
		return
	}
	s.closeCode = code
	s.closeReason = reason
}

// send writes one outbound message. It returns false once the session is
// closing or the transport is gone, and nothing is written in that case.
func (s *session) send(msg any) bool {
	if s.ctx.Err() != nil {
		return false
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error("encoding outbound message", "error", err)
		s.closeWith(protocol.CloseInternal, protocol.ReasonInternal)
		return false
	}

	if err := s.conn.WriteMessage(data); err != nil {
		s.logger.Debug("write failed", "error", err)
		s.cancel(errDisconnected)
		return false
	}
	return true
}

// startReader forwards inbound frames to s.frames until the transport fails.
// The reader never waits on the queue, so a disconnect is seen even while a
// turn is generating; it cancels the session and interrupts that turn. A
// client that fills the queue is cut off.
func (s *session) startReader() {
	s.frames = make(chan []byte, inboundQueue)
	s.readerDone = make(chan struct{})

	go func() {
		defer close(s.readerDone)
		defer close(s.frames)

		for {
			data, err := s.conn.ReadMessage()
			if err != nil {
				s.logger.Debug("read loop ended", "error", err)
				s.cancel(errDisconnected)
				return
			}

			select {
			case s.frames <- data:
			default:
				s.logger.Warn("inbound queue full, closing", "queued", len(s.frames))
				s.cancel(errFlooded)
				return
			}
		}
	}()
}

// teardown moves the session to Closed: the registry entry is removed, the
// transport is released and the reader goroutine is joined. Safe to call
// more than once.
func (s *session) teardown() {
	s.teardownOnce.Do(func() {
		s.setState(StateClosing)

		cause := context.Cause(s.ctx)
		s.cancel(context.Canceled)

		if s.registered {
			s.c.registry.Unregister(s.identity.ID, s)
		}

		if s.closeCode == 0 {
			switch {
			case errors.Is(cause, errFlooded):
				s.closeWith(protocol.ClosePolicyViolation, protocol.ReasonTooManyMessages)
			case cause != nil && !errors.Is(cause, errDisconnected):
				s.closeWith(protocol.CloseGoingAway, protocol.ReasonGoingAway)
			default:
				s.closeWith(protocol.CloseNormal, "")
			}
		}

		if err := s.conn.Close(s.closeCode, s.closeReason); err != nil {
			s.logger.Debug("closing transport", "error", err)
		}

		if s.readerDone != nil {
			<-s.readerDone
		}

		s.setState(StateClosed)
		s.logger.Info("connection closed",
			"close_code", s.closeCode,
			"duration", time.Since(s.start),
		)
	})
}
