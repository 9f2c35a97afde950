// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// The session engine depends on the narrow ConversationStore interface; the
// operator CLI additionally needs UserStore to provision principals. Store
// composes both, and SQLiteStore implements it in a single struct.
//
// # Data Models
//
//   - User: a principal tokens are issued for
//   - Conversation: owned by exactly one user, carries a mutable title
//   - Turn: one user message plus the agent reply, stored as a single row
//
// Turns are returned in creation order (created_at, then id). Deleting a
// conversation cascades to its turns.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;     (file databases only)
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// In-memory databases are pinned to a single connection so every caller sees
// the same data.
//
// # Error Handling
//
//   - ErrNotFound: entity missing, or conversation owned by someone else
//   - ErrDuplicateUser: username already taken
//
// A conversation deleted out from under a writer surfaces as ErrNotFound from
// AppendTurn, ListTurns, and RenameConversation.
//
// # Testing
//
// Use NewMockStore() for unit tests. It supports failure injection (FailOn)
// and call hooks (OnCall). Use NewSQLiteStore(":memory:") or a t.TempDir()
// path for integration tests with real SQLite.
package store
