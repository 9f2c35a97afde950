// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject storage failures

package store

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	users         map[string]*User        // keyed by username
	conversations map[int64]*Conversation // keyed by conversation ID
	turns         map[int64][]*Turn       // keyed by conversation ID
	nextID        int64
	failures      map[string]error  // keyed by method name
	hooks         map[string]func() // keyed by method name, run before the call
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[string]*User),
		conversations: make(map[int64]*Conversation),
		turns:         make(map[int64][]*Turn),
		failures:      make(map[string]error),
		hooks:         make(map[string]func()),
	}
}

// FailOn makes every subsequent call to method return err. A nil err clears it.
func (m *MockStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// OnCall registers fn to run at the start of every call to method.
func (m *MockStore) OnCall(method string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[method] = fn
}

// enter runs the hook for method and returns its injected failure, if any.
func (m *MockStore) enter(method string) error {
	m.mu.RLock()
	hook := m.hooks[method]
	err := m.failures[method]
	m.mu.RUnlock()

	if hook != nil {
		hook()
	}
	return err
}

func (m *MockStore) newID() int64 {
	m.nextID++
	return m.nextID
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	if err := m.enter("CreateUser"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.Username]; exists {
		return ErrDuplicateUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.ID = m.newID()

	u := *user
	m.users[u.Username] = &u
	return nil
}

// GetUserByUsername retrieves a user by username.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	if err := m.enter("GetUserByUsername"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// GetOwnedConversation retrieves a conversation scoped to its owner.
func (m *MockStore) GetOwnedConversation(ctx context.Context, id, ownerID int64) (*Conversation, error) {
	if err := m.enter("GetOwnedConversation"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok || c.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, ownerID int64, title string) (*Conversation, error) {
	if err := m.enter("CreateConversation"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := &Conversation{
		ID:        m.newID(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	m.conversations[c.ID] = c

	result := *c
	return &result, nil
}

// CountConversations counts conversations owned by ownerID.
func (m *MockStore) CountConversations(ctx context.Context, ownerID int64) (int, error) {
	if err := m.enter("CountConversations"); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, c := range m.conversations {
		if c.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

// RenameConversation replaces a conversation title.
func (m *MockStore) RenameConversation(ctx context.Context, id int64, title string) error {
	if err := m.enter("RenameConversation"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.Title = title
	return nil
}

// DeleteConversation removes a conversation and its turns, the way an
// external collaborator would.
func (m *MockStore) DeleteConversation(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.conversations, id)
	delete(m.turns, id)
}

// AppendTurn stores a turn.
func (m *MockStore) AppendTurn(ctx context.Context, conversationID, authorID int64, userText, agentText string) (*Turn, error) {
	if err := m.enter("AppendTurn"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}

	t := &Turn{
		ID:             m.newID(),
		ConversationID: conversationID,
		AuthorID:       authorID,
		UserText:       userText,
		AgentText:      agentText,
		CreatedAt:      time.Now().UTC(),
	}
	m.turns[conversationID] = append(m.turns[conversationID], t)

	result := *t
	return &result, nil
}

// ListTurns returns copies of the turns of a conversation in insertion order.
func (m *MockStore) ListTurns(ctx context.Context, conversationID int64) ([]*Turn, error) {
	if err := m.enter("ListTurns"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}

	turns := m.turns[conversationID]
	result := make([]*Turn, len(turns))
	for i, t := range turns {
		c := *t
		result[i] = &c
	}
	return result, nil
}

// CountTurns counts the turns of a conversation.
func (m *MockStore) CountTurns(ctx context.Context, conversationID int64) (int, error) {
	if err := m.enter("CountTurns"); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns[conversationID]), nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
