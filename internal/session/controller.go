// ABOUTME: Session controller driving authentication, binding, the turn loop and teardown
// ABOUTME: One Serve or CreateNew call per accepted connection

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/solace-gateway/internal/auth"
	"github.com/2389/solace-gateway/internal/pipeline"
	"github.com/2389/solace-gateway/internal/protocol"
	"github.com/2389/solace-gateway/internal/registry"
	"github.com/2389/solace-gateway/internal/store"
)

// DefaultGenerateTimeout bounds a generation call when Params leaves it zero.
const DefaultGenerateTimeout = 60 * time.Second

// inboundQueue is how many received but unprocessed frames a session buffers
// while a turn is in flight. A client that overflows it is closed with 1008.
const inboundQueue = 32

// TokenValidator resolves a bearer token to an identity.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (auth.Identity, error)
}

// Renderer converts a reply to HTML.
type Renderer interface {
	HTML(text string) (string, error)
}

// Params holds the collaborators and options of a Controller.
type Params struct {
	Validator TokenValidator
	Store     store.ConversationStore
	Generator pipeline.Generator
	Registry  *registry.Registry
	Renderer  Renderer // optional; nil disables message_html
	Logger    *slog.Logger

	GenerateTimeout time.Duration
	ThinkingMessage string // empty disables ai_thinking
	StreamReplies   bool
}

// Controller runs sessions. It is safe for concurrent use; all shared state
// lives in the registry.
type Controller struct {
	validator TokenValidator
	store     store.ConversationStore
	generator pipeline.Generator
	registry  *registry.Registry
	renderer  Renderer
	logger    *slog.Logger

	generateTimeout time.Duration
	thinkingMessage string
	streamReplies   bool
}

// NewController creates a Controller.
func NewController(p Params) *Controller {
	timeout := p.GenerateTimeout
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}
	return &Controller{
		validator:       p.Validator,
		store:           p.Store,
		generator:       p.Generator,
		registry:        p.Registry,
		renderer:        p.Renderer,
		logger:          p.Logger.With("component", "session"),
		generateTimeout: timeout,
		thinkingMessage: p.ThinkingMessage,
		streamReplies:   p.StreamReplies,
	}
}

// Serve binds conn to an existing conversation and processes turns until the
// client disconnects, ctx is cancelled, or an unrecoverable error occurs.
// It returns after the connection is torn down.
func (c *Controller) Serve(ctx context.Context, conn Conn, token string, conversationID int64) {
	s := c.newSession(ctx, conn)
	defer s.teardown()

	if !s.authenticate(token) {
		return
	}

	s.setState(StateBinding)
	s.logger = s.logger.With("chat_id", conversationID)

	conv, err := c.store.GetOwnedConversation(s.ctx, conversationID, s.identity.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Info("conversation not found or not owned")
			s.closeWith(protocol.CloseNotFound, protocol.ReasonNotFound)
			return
		}
		s.logger.Error("resolving conversation", "error", err)
		s.closeWith(protocol.CloseInternal, protocol.ReasonInternal)
		return
	}
	s.conversationID = conv.ID

	if err := c.registry.Register(s.identity.ID, conv.ID, s); err != nil {
		if errors.Is(err, registry.ErrAlreadyConnected) {
			s.closeWith(protocol.CloseAlreadyConnected, protocol.ReasonAlreadyConnected)
			return
		}
		s.closeWith(protocol.CloseGoingAway, protocol.ReasonGoingAway)
		return
	}
	s.registered = true

	s.setState(StateActive)
	if !s.send(protocol.NewConnected(conv.ID, conv.Title)) {
		return
	}

	s.startReader()
	s.loop()
}

// CreateNew authenticates, creates a conversation with a placeholder title,
// reports it with a single chat_created message and closes normally. The
// connection is never registered and never processes turns.
func (c *Controller) CreateNew(ctx context.Context, conn Conn, token string) {
	s := c.newSession(ctx, conn)
	defer s.teardown()

	if !s.authenticate(token) {
		return
	}

	s.setState(StateBinding)

	count, err := c.store.CountConversations(s.ctx, s.identity.ID)
	if err != nil {
		s.logger.Error("counting conversations", "error", err)
		s.closeWith(protocol.CloseInternal, protocol.ReasonCreateFailed)
		return
	}

	conv, err := c.store.CreateConversation(s.ctx, s.identity.ID, DefaultTitle(count+1))
	if err != nil {
		s.logger.Error("creating conversation", "error", err)
		s.closeWith(protocol.CloseInternal, protocol.ReasonCreateFailed)
		return
	}

	s.logger.Info("conversation created", "chat_id", conv.ID, "title", conv.Title)
	if s.send(protocol.NewChatCreated(conv.ID, conv.Title)) {
		s.closeWith(protocol.CloseNormal, "")
	}
}

// authenticate moves the session through Authenticating and records the
// identity. On failure it sets the close reason and returns false.
func (s *session) authenticate(token string) bool {
	s.setState(StateAuthenticating)

	id, err := s.c.validator.Validate(s.ctx, token)
	if err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) && authErr.Kind == auth.KindPrincipalUnavailable {
			s.logger.Warn("identity lookup unavailable", "error", err)
			s.closeWith(protocol.CloseTryAgainLater, protocol.ReasonTryAgainLater)
			return false
		}
		s.logger.Info("authentication failed", "error", err)
		s.closeWith(protocol.CloseAuthFailed, protocol.ReasonAuthFailed)
		return false
	}

	s.identity = id
	s.logger = s.logger.With("user_id", id.ID)
	return true
}
