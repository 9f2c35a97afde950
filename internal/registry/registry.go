// ABOUTME: Tracks the single live connection each user may hold
// ABOUTME: Rejects a second concurrent connection and cancels everything on shutdown

package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyConnected matches any *ConflictError via errors.Is.
var ErrAlreadyConnected = errors.New("already connected")

// ErrShuttingDown is returned by Register after Shutdown.
var ErrShuttingDown = errors.New("registry shutting down")

// Handle is the registry's non-owning reference to a live connection.
type Handle interface {
	// ConnID identifies the connection in logs and conflict errors.
	ConnID() string
	// Cancel asks the connection to close. It must not block.
	Cancel()
}

// Reason explains why a registration was refused.
type Reason int

const (
	AlreadyConnected Reason = iota
)

func (r Reason) String() string {
	if r == AlreadyConnected {
		return "already_connected"
	}
	return "unknown"
}

// ConflictError is returned when a user already holds a live connection.
type ConflictError struct {
	UserID   int64
	Existing string
	Reason   Reason
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("user %d %s (connection %s)", e.UserID, ErrAlreadyConnected, e.Existing)
}

// Is reports whether target is ErrAlreadyConnected.
func (e *ConflictError) Is(target error) bool {
	return target == ErrAlreadyConnected
}

// Entry describes a registered connection.
type Entry struct {
	UserID         int64
	ConversationID int64
	Handle         Handle
	Since          time.Time
}

// Registry maps user IDs to their live connection.
type Registry struct {
	mu      sync.Mutex
	entries map[int64]Entry
	closed  bool
	logger  *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[int64]Entry),
		logger:  logger.With("component", "registry"),
	}
}

// Register installs h as the live connection for userID. A user with a live
// entry gets a *ConflictError and the existing entry is left untouched.
func (r *Registry) Register(userID, conversationID int64, h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrShuttingDown
	}

	if existing, ok := r.entries[userID]; ok {
		r.logger.Info("connection rejected",
			"user_id", userID,
			"conn_id", h.ConnID(),
			"existing_conn_id", existing.Handle.ConnID(),
		)
		return &ConflictError{UserID: userID, Existing: existing.Handle.ConnID(), Reason: AlreadyConnected}
	}

	r.entries[userID] = Entry{
		UserID:         userID,
		ConversationID: conversationID,
		Handle:         h,
		Since:          time.Now(),
	}
	r.logger.Info("connection registered",
		"user_id", userID,
		"chat_id", conversationID,
		"conn_id", h.ConnID(),
		"total_connections", len(r.entries),
	)
	return nil
}

// Unregister removes the entry for userID only if it was installed by h.
// Calling it more than once, or for a handle that never registered, is a no-op.
func (r *Registry) Unregister(userID int64, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[userID]
	if !ok || existing.Handle != h {
		return false
	}

	delete(r.entries, userID)
	r.logger.Info("connection unregistered",
		"user_id", userID,
		"conn_id", h.ConnID(),
		"total_connections", len(r.entries),
	)
	return true
}

// Lookup returns the live entry for userID.
func (r *Registry) Lookup(userID int64) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	return e, ok
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown refuses new registrations and cancels every live handle. Entries
// are removed by their own connections as they tear down.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	handles := make([]Handle, 0, len(r.entries))
	for _, e := range r.entries {
		handles = append(handles, e.Handle)
	}
	r.mu.Unlock()

	r.logger.Info("cancelling live connections", "count", len(handles))
	for _, h := range handles {
		h.Cancel()
	}
}
