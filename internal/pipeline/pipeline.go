// ABOUTME: Generator interface and error taxonomy for reply generation
// ABOUTME: The session engine only sees Generate(ctx, text, history) and *Error

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/2389/solace-gateway/internal/config"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the conversation history handed to a generator.
type Message struct {
	Role    string
	Content string
}

// Generator produces the agent reply for a user message given prior history.
// Implementations must return promptly once ctx is done.
type Generator interface {
	Generate(ctx context.Context, userText string, history []Message) (string, error)
}

// Kind classifies a generation failure.
type Kind int

const (
	KindTimeout Kind = iota
	KindUnavailable
	KindInvalidResponse
)

// Code is the wire code reported to clients for this kind.
func (k Kind) Code() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Error is the only error type a Generator returns.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Kind.Code(), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// fromContext maps transport and context failures onto a Kind.
func fromContext(err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Kind: KindTimeout, Err: err}
	default:
		return &Error{Kind: KindUnavailable, Err: err}
	}
}

// New builds the generator selected by cfg.
func New(cfg config.PipelineConfig, logger *slog.Logger) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewClient(ClientConfig{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			Temperature:  cfg.Temperature,
			SystemPrompt: cfg.SystemPrompt,
		}, logger), nil
	case config.ProviderEcho, "":
		logger.Info("using echo generator")
		return NewEcho(0), nil
	default:
		return nil, fmt.Errorf("unknown pipeline provider %q", cfg.Provider)
	}
}
