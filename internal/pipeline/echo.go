// ABOUTME: Deterministic Generator that echoes the user message
// ABOUTME: Used for local runs without a model endpoint and in tests

package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Echo replies with the user message and the size of the history it saw.
type Echo struct {
	delay time.Duration
}

// NewEcho creates an Echo generator that waits delay before replying.
func NewEcho(delay time.Duration) *Echo {
	return &Echo{delay: delay}
}

// Generate implements Generator.
func (e *Echo) Generate(ctx context.Context, userText string, history []Message) (string, error) {
	if e.delay > 0 {
		timer := time.NewTimer(e.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return "", fromContext(ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", fromContext(err)
	}

	return fmt.Sprintf("You said: %s (history: %d messages)", userText, len(history)), nil
}

var _ Generator = (*Echo)(nil)
