// ABOUTME: The Active-state turn loop: ack, history replay, generation, persistence, reply
// ABOUTME: Turns of one connection run strictly one after another

package session

import (
	"context"
	"errors"
	"strings"

	"github.com/2389/solace-gateway/internal/pipeline"
	"github.com/2389/solace-gateway/internal/protocol"
	"github.com/2389/solace-gateway/internal/store"
)

// streamChunkWords is how many words each ai_streaming message adds.
const streamChunkWords = 3

// loop processes inbound frames until the session ends.
func (s *session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-s.frames:
			if !ok || s.ctx.Err() != nil {
				return
			}
			if !s.handleFrame(frame) {
				return
			}
		}
	}
}

// handleFrame processes one inbound frame and reports whether the session
// should keep going.
func (s *session) handleFrame(frame []byte) bool {
	msg, err := protocol.Decode(frame)
	if err != nil {
		s.logger.Warn("closing on malformed frame", "error", err)
		s.closeWith(protocol.CloseInvalidPayload, protocol.ReasonInvalidPayload)
		return false
	}

	if msg.Type != protocol.TypeUserMessage {
		s.logger.Debug("ignoring message", "type", msg.Type)
		return true
	}

	text := strings.TrimSpace(msg.Message)
	if text == "" {
		return true
	}

	return s.processTurn(text)
}

func (s *session) processTurn(text string) bool {
	if !s.send(protocol.NewMessageReceived(text)) {
		return false
	}

	turns, err := s.c.store.ListTurns(s.ctx, s.conversationID)
	if err != nil {
		return s.storeFailed("listing turns", err)
	}
	history := flattenHistory(turns)

	if s.c.thinkingMessage != "" {
		if !s.send(protocol.NewThinking(s.c.thinkingMessage)) {
			return false
		}
	}

	reply, err := s.generate(text, history)
	if s.ctx.Err() != nil {
		s.logger.Info("discarding generation result, session closing")
		return false
	}
	if err != nil {
		var genErr *pipeline.Error
		errors.As(err, &genErr)
		s.logger.Warn("generation failed", "kind", genErr.Kind.Code(), "error", err)
		return s.send(protocol.NewError(generationFailureText(genErr.Kind), genErr.Kind.Code()))
	}

	turn, err := s.c.store.AppendTurn(s.ctx, s.conversationID, s.identity.ID, text, reply)
	if err != nil {
		return s.storeFailed("appending turn", err)
	}
	s.logger.Debug("turn persisted", "turn_id", turn.ID, "history_len", len(history))

	if s.c.streamReplies && !s.streamReply(reply) {
		return false
	}

	if !s.send(protocol.NewResponse(reply, turn.ID, turn.CreatedAt, s.renderHTML(reply))) {
		return false
	}

	return s.applyAutoTitle(text)
}

// generate calls the pipeline with a bounded wait. A generator that ignores
// its context still cannot hold the session past the deadline or a
// disconnect; its late result is dropped.
func (s *session) generate(text string, history []pipeline.Message) (string, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.c.generateTimeout)
	defer cancel()

	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)

	go func() {
		reply, err := s.c.generator.Generate(ctx, text, history)
		done <- result{reply: reply, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			var genErr *pipeline.Error
			if errors.As(r.err, &genErr) {
				return "", r.err
			}
			if errors.Is(r.err, context.DeadlineExceeded) {
				return "", &pipeline.Error{Kind: pipeline.KindTimeout, Err: r.err}
			}
			return "", &pipeline.Error{Kind: pipeline.KindUnavailable, Err: r.err}
		}
		if strings.TrimSpace(r.reply) == "" {
			return "", &pipeline.Error{Kind: pipeline.KindInvalidResponse, Err: errors.New("empty reply")}
		}
		return r.reply, nil
	case <-ctx.Done():
		return "", &pipeline.Error{Kind: pipeline.KindTimeout, Err: ctx.Err()}
	}
}

// storeFailed handles a storage error mid-loop. A vanished conversation ends
// the session; anything else is reported and the session stays Active.
func (s *session) storeFailed(op string, err error) bool {
	if s.ctx.Err() != nil {
		return false
	}
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("conversation vanished", "op", op)
		s.closeWith(protocol.CloseNotFound, protocol.ReasonNotFound)
		return false
	}
	s.logger.Error("storage failure", "op", op, "error", err)
	return s.send(protocol.NewError("Could not save or load the conversation, please try again", protocol.ErrorCodeStorage))
}

// streamReply sends the reply as growing prefixes, a few words at a time.
func (s *session) streamReply(reply string) bool {
	for _, partial := range wordPrefixes(reply, streamChunkWords) {
		if !s.send(protocol.NewStreaming(partial.text, partial.last)) {
			return false
		}
	}
	return true
}

func (s *session) renderHTML(reply string) string {
	if s.c.renderer == nil {
		return ""
	}
	html, err := s.c.renderer.HTML(reply)
	if err != nil {
		s.logger.Warn("rendering reply", "error", err)
		return ""
	}
	return html
}

// applyAutoTitle renames a conversation after its first turn. Failures other
// than a vanished conversation are logged and otherwise ignored.
func (s *session) applyAutoTitle(text string) bool {
	count, err := s.c.store.CountTurns(s.ctx, s.conversationID)
	if err != nil {
		s.logger.Warn("counting turns for auto-title", "error", err)
		return true
	}
	if count != 1 {
		return true
	}

	// Re-read the title so a rename made elsewhere is never overwritten.
	conv, err := s.c.store.GetOwnedConversation(s.ctx, s.conversationID, s.identity.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.storeFailed("reading title", err)
		}
		s.logger.Warn("reading title for auto-title", "error", err)
		return true
	}

	title, ok := AutoTitle(conv.Title, count, text)
	if !ok {
		return true
	}

	if err := s.c.store.RenameConversation(s.ctx, s.conversationID, title); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.storeFailed("renaming conversation", err)
		}
		s.logger.Warn("auto-title rename failed", "error", err)
		return true
	}
	s.logger.Info("conversation auto-titled", "title", title)
	return true
}

// flattenHistory turns stored turns into alternating user/assistant messages.
func flattenHistory(turns []*store.Turn) []pipeline.Message {
	history := make([]pipeline.Message, 0, len(turns)*2)
	for _, t := range turns {
		history = append(history,
			pipeline.Message{Role: pipeline.RoleUser, Content: t.UserText},
			pipeline.Message{Role: pipeline.RoleAssistant, Content: t.AgentText},
		)
	}
	return history
}

type prefix struct {
	text string
	last bool
}

// wordPrefixes splits text into whitespace-separated words and returns the
// cumulative prefix after every n words, plus the full text at the end.
func wordPrefixes(text string, n int) []prefix {
	words := strings.Fields(text)
	var out []prefix
	for end := n; end < len(words)+n; end += n {
		if end > len(words) {
			end = len(words)
		}
		out = append(out, prefix{text: strings.Join(words[:end], " "), last: end == len(words)})
	}
	return out
}

func generationFailureText(kind pipeline.Kind) string {
	switch kind {
	case pipeline.KindTimeout:
		return "The assistant took too long to answer, please try again"
	case pipeline.KindInvalidResponse:
		return "The assistant returned an unusable answer, please try again"
	default:
		return "The assistant is unavailable right now, please try again"
	}
}
