// ABOUTME: Store interface and data types for solace-gateway persistence
// ABOUTME: Defines User, Conversation, Turn structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
// (or, for conversations, is not owned by the caller)
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when trying to create a user whose username is taken
var ErrDuplicateUser = errors.New("user already exists")

// User is a principal that can authenticate to the gateway
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Conversation is a named, owned, ordered sequence of turns
type Conversation struct {
	ID        int64
	OwnerID   int64
	Title     string
	CreatedAt time.Time
}

// Turn is one user message plus the agent reply, persisted as a single row
type Turn struct {
	ID             int64
	ConversationID int64
	AuthorID       int64
	UserText       string
	AgentText      string
	CreatedAt      time.Time
}

// ConversationStore is what the session engine needs from storage.
// Each method is atomic on its own; callers get no cross-call transaction.
type ConversationStore interface {
	// GetOwnedConversation returns ErrNotFound when the conversation is
	// missing or belongs to another owner.
	GetOwnedConversation(ctx context.Context, id, ownerID int64) (*Conversation, error)
	CreateConversation(ctx context.Context, ownerID int64, title string) (*Conversation, error)
	CountConversations(ctx context.Context, ownerID int64) (int, error)
	RenameConversation(ctx context.Context, id int64, title string) error

	// Turns
	AppendTurn(ctx context.Context, conversationID, authorID int64, userText, agentText string) (*Turn, error)
	ListTurns(ctx context.Context, conversationID int64) ([]*Turn, error)
	CountTurns(ctx context.Context, conversationID int64) (int, error)
}

// UserStore holds the principals tokens are issued for
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// Store is the full persistence surface of the gateway
type Store interface {
	ConversationStore
	UserStore

	// Close releases any resources held by the store
	Close() error
}
