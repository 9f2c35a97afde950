// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user, conversation, and turn persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	inMemory := path == ":memory:"
	if !inMemory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, inMemory))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// sqliteDSN carries the connection pragmas in the DSN. The driver applies
// them to every connection the pool opens, not just the first one.
func sqliteDSN(path string, inMemory bool) string {
	pragmas := []string{"busy_timeout(5000)", "foreign_keys(1)"}
	if !inMemory {
		pragmas = append(pragmas, "journal_mode(WAL)")
	}
	return path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id   INTEGER NOT NULL REFERENCES users(id),
			title      TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner_id);

		CREATE TABLE IF NOT EXISTS turns (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			author_id       INTEGER NOT NULL REFERENCES users(id),
			user_text       TEXT NOT NULL,
			agent_text      TEXT NOT NULL,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_turns_conversation_created
			ON turns(conversation_id, created_at, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation checks if the error is a SQLite FOREIGN KEY constraint violation
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// timeLayout is fixed-width so that lexical order in SQL matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// CreateUser inserts a new user and fills in its ID.
// Returns ErrDuplicateUser if the username is taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, created_at)
		VALUES (?, ?, ?)
	`, user.Username, user.PasswordHash, formatTime(user.CreatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	user.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user id: %w", err)
	}

	s.logger.Debug("created user", "id", user.ID, "username", user.Username)
	return nil
}

// GetUserByUsername retrieves a user by username.
// Returns ErrNotFound if no such user exists.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	var createdAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &user, nil
}

// GetOwnedConversation retrieves a conversation by ID scoped to its owner.
// Returns ErrNotFound if it doesn't exist or is owned by someone else.
func (s *SQLiteStore) GetOwnedConversation(ctx context.Context, id, ownerID int64) (*Conversation, error) {
	var conv Conversation
	var createdAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, created_at
		FROM conversations
		WHERE id = ? AND owner_id = ?
	`, id, ownerID).Scan(&conv.ID, &conv.OwnerID, &conv.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &conv, nil
}

// CreateConversation creates a new conversation owned by ownerID.
func (s *SQLiteStore) CreateConversation(ctx context.Context, ownerID int64, title string) (*Conversation, error) {
	conv := &Conversation{
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (owner_id, title, created_at)
		VALUES (?, ?, ?)
	`, conv.OwnerID, conv.Title, formatTime(conv.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	conv.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading conversation id: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "owner_id", ownerID, "title", title)
	return conv, nil
}

// CountConversations returns how many conversations ownerID has.
func (s *SQLiteStore) CountConversations(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE owner_id = ?`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting conversations: %w", err)
	}
	return n, nil
}

// RenameConversation replaces the title of a conversation.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) RenameConversation(ctx context.Context, id int64, title string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("renaming conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("renamed conversation", "id", id, "title", title)
	return nil
}

// AppendTurn persists one complete turn.
// Returns ErrNotFound if the conversation has been removed.
func (s *SQLiteStore) AppendTurn(ctx context.Context, conversationID, authorID int64, userText, agentText string) (*Turn, error) {
	turn := &Turn{
		ConversationID: conversationID,
		AuthorID:       authorID,
		UserText:       userText,
		AgentText:      agentText,
		CreatedAt:      time.Now().UTC(),
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (conversation_id, author_id, user_text, agent_text, created_at)
		SELECT ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM conversations WHERE id = ?)
	`, turn.ConversationID, turn.AuthorID, turn.UserText, turn.AgentText, formatTime(turn.CreatedAt), turn.ConversationID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("inserting turn: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reading rows affected: %w", err)
	}
	if inserted == 0 {
		return nil, ErrNotFound
	}

	turn.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading turn id: %w", err)
	}

	s.logger.Debug("appended turn", "id", turn.ID, "conversation_id", conversationID)
	return turn, nil
}

// ListTurns returns every turn of a conversation, oldest first.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) ListTurns(ctx context.Context, conversationID int64) ([]*Turn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking conversation: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, conversation_id, author_id, user_text, agent_text, created_at
		FROM turns
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		var turn Turn
		var createdAt string

		if err := rows.Scan(&turn.ID, &turn.ConversationID, &turn.AuthorID,
			&turn.UserText, &turn.AgentText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning turn row: %w", err)
		}

		turn.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing turn created_at: %w", err)
		}

		turns = append(turns, &turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turn rows: %w", err)
	}

	return turns, nil
}

// CountTurns returns the number of turns in a conversation.
func (s *SQLiteStore) CountTurns(ctx context.Context, conversationID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns WHERE conversation_id = ?`, conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting turns: %w", err)
	}
	return n, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
