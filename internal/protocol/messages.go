// ABOUTME: JSON message types exchanged with chat clients over WebSocket
// ABOUTME: Inbound user messages, outbound session events, and close codes

package protocol

import "time"

// Message types from client to gateway
const (
	TypeUserMessage = "user_message"
)

// Message types from gateway to client
const (
	TypeConnected       = "connected"
	TypeMessageReceived = "message_received"
	TypeAIThinking      = "ai_thinking"
	TypeAIStreaming     = "ai_streaming"
	TypeAIResponse      = "ai_response"
	TypeError           = "error"
	TypeChatCreated     = "chat_created"
)

// Error codes carried by ErrorMessage
const (
	ErrorCodeTimeout         = "timeout"
	ErrorCodeUnavailable     = "unavailable"
	ErrorCodeInvalidResponse = "invalid_response"
	ErrorCodeStorage         = "storage"
)

// Close codes. 4xxx are application codes, the rest come from RFC 6455.
const (
	CloseNormal           = 1000
	CloseGoingAway        = 1001
	CloseInvalidPayload   = 1007
	ClosePolicyViolation  = 1008
	CloseInternal         = 1011
	CloseTryAgainLater    = 1013
	CloseAuthFailed       = 4000
	CloseNotFound         = 4004
	CloseAlreadyConnected = 4009
)

// Close reasons sent alongside the codes above
const (
	ReasonAuthFailed       = "Authentication failed"
	ReasonNotFound         = "Chat not found or access denied"
	ReasonAlreadyConnected = "Already connected"
	ReasonInternal         = "Internal error"
	ReasonGoingAway        = "Server shutting down"
	ReasonTryAgainLater    = "Identity lookup unavailable, retry later"
	ReasonInvalidPayload   = "Invalid payload"
	ReasonTooManyMessages  = "Too many messages in flight"
	ReasonCreateFailed     = "Failed to create chat"
)

// BaseMessage contains the field every message shares.
type BaseMessage struct {
	Type string `json:"type"`
}

// Inbound is a decoded client message. Message is only meaningful for
// TypeUserMessage.
type Inbound struct {
	BaseMessage
	Message string `json:"message"`
}

// ConnectedMessage confirms the connection is bound to a conversation.
type ConnectedMessage struct {
	BaseMessage
	ChatID  int64  `json:"chat_id"`
	Message string `json:"message"`
}

// MessageReceivedMessage echoes the accepted (trimmed) user text.
type MessageReceivedMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// ThinkingMessage tells the client generation has started.
type ThinkingMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// StreamingMessage carries the reply accumulated so far.
type StreamingMessage struct {
	BaseMessage
	PartialMessage string `json:"partial_message"`
	IsComplete     bool   `json:"is_complete"`
}

// ResponseMessage carries a persisted agent reply.
type ResponseMessage struct {
	BaseMessage
	Message     string `json:"message"`
	MessageID   int64  `json:"message_id"`
	Timestamp   string `json:"timestamp"`
	MessageHTML string `json:"message_html,omitempty"`
}

// ErrorMessage reports a turn-local failure. The connection stays open.
type ErrorMessage struct {
	BaseMessage
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ChatCreatedMessage is the only message of the create-new handshake.
type ChatCreatedMessage struct {
	BaseMessage
	ChatID   int64  `json:"chat_id"`
	ChatName string `json:"chat_name"`
	Redirect string `json:"redirect"`
}

// NewConnected builds a connected message for a conversation.
func NewConnected(chatID int64, title string) ConnectedMessage {
	return ConnectedMessage{
		BaseMessage: BaseMessage{Type: TypeConnected},
		ChatID:      chatID,
		Message:     "Connected to chat: " + title,
	}
}

// NewMessageReceived builds the acknowledgement of a user message.
func NewMessageReceived(text string) MessageReceivedMessage {
	return MessageReceivedMessage{BaseMessage: BaseMessage{Type: TypeMessageReceived}, Message: text}
}

// NewThinking builds a thinking notice.
func NewThinking(text string) ThinkingMessage {
	return ThinkingMessage{BaseMessage: BaseMessage{Type: TypeAIThinking}, Message: text}
}

// NewStreaming builds a partial reply.
func NewStreaming(partial string, complete bool) StreamingMessage {
	return StreamingMessage{
		BaseMessage:    BaseMessage{Type: TypeAIStreaming},
		PartialMessage: partial,
		IsComplete:     complete,
	}
}

// NewResponse builds the final reply for a persisted turn.
func NewResponse(text string, turnID int64, at time.Time, html string) ResponseMessage {
	return ResponseMessage{
		BaseMessage: BaseMessage{Type: TypeAIResponse},
		Message:     text,
		MessageID:   turnID,
		Timestamp:   at.UTC().Format(time.RFC3339Nano),
		MessageHTML: html,
	}
}

// NewError builds a turn-local error event.
func NewError(text, code string) ErrorMessage {
	return ErrorMessage{BaseMessage: BaseMessage{Type: TypeError}, Message: text, Code: code}
}

// NewChatCreated builds the create-new handshake reply.
func NewChatCreated(chatID int64, name string) ChatCreatedMessage {
	return ChatCreatedMessage{
		BaseMessage: BaseMessage{Type: TypeChatCreated},
		ChatID:      chatID,
		ChatName:    name,
		Redirect:    "/chat/" + itoa(chatID),
	}
}
