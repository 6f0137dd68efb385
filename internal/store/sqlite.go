package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/meetwatch/internal/domain"
	"github.com/ashureev/meetwatch/internal/shared"
	_ "modernc.org/sqlite"
)

const keywordSeparator = ", "

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		phone_number TEXT,
		username TEXT,
		first_name TEXT,
		last_name TEXT,
		session_connected INTEGER NOT NULL DEFAULT 0,
		session_ref TEXT,
		calendar_connected INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS detected_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		chat_id INTEGER NOT NULL,
		message_text TEXT NOT NULL,
		detected_keywords TEXT NOT NULL,
		is_confirmed INTEGER NOT NULL DEFAULT 0,
		calendar_event_id TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users (user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_detected_messages_user ON detected_messages(user_id);

	CREATE TABLE IF NOT EXISTS calendar_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		event_id TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		calendar_link TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users (user_id)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	query := `
		SELECT user_id, phone_number, username, first_name, last_name,
		       session_connected, session_ref, calendar_connected,
		       created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	user, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

func scanUser(scan func(dest ...any) error) (*domain.User, error) {
	var user domain.User
	var phone, username, firstName, lastName, sessionRef sql.NullString
	var sessionConnected, calendarConnected int
	var createdAt, updatedAt int64

	err := scan(
		&user.UserID, &phone, &username, &firstName, &lastName,
		&sessionConnected, &sessionRef, &calendarConnected,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.PhoneNumber = phone.String
	user.Username = username.String
	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.SessionRef = sessionRef.String
	user.SessionConnected = sessionConnected != 0
	user.CalendarConnected = calendarConnected != 0
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, phone_number, username, first_name, last_name,
	                   session_connected, session_ref, calendar_connected,
	                   created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		phone_number = excluded.phone_number,
		username = excluded.username,
		first_name = excluded.first_name,
		last_name = excluded.last_name,
		updated_at = excluded.updated_at`

	now := time.Now()
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, nullable(user.PhoneNumber), nullable(user.Username),
		nullable(user.FirstName), nullable(user.LastName),
		boolInt(user.SessionConnected), nullable(user.SessionRef),
		boolInt(user.CalendarConnected),
		createdAt.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// ListUsers returns all known users.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	query := `
		SELECT user_id, phone_number, username, first_name, last_name,
		       session_connected, session_ref, calendar_connected,
		       created_at, updated_at
		FROM users`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close user rows", "error", closeErr)
		}
	}()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// SetSessionStatus records whether a user has an authorized monitoring session.
// Retries on SQLITE_BUSY since it is called from concurrent per-user paths.
func (s *SQLiteStore) SetSessionStatus(ctx context.Context, userID int64, connected bool, sessionRef string) error {
	return s.execWithRetry(ctx, func() error {
		query := `UPDATE users SET session_connected = ?, session_ref = ?, updated_at = ? WHERE user_id = ?`
		result, err := s.db.ExecContext(ctx, query,
			boolInt(connected), nullable(sessionRef), time.Now().Unix(), userID)
		if err != nil {
			return fmt.Errorf("update session status: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			slog.Warn("SetSessionStatus affected 0 rows", "user_id", userID)
		}
		return nil
	})
}

// SetCalendarStatus records whether a user has connected their calendar.
func (s *SQLiteStore) SetCalendarStatus(ctx context.Context, userID int64, connected bool) error {
	query := `UPDATE users SET calendar_connected = ?, updated_at = ? WHERE user_id = ?`
	if _, err := s.db.ExecContext(ctx, query, boolInt(connected), time.Now().Unix(), userID); err != nil {
		return fmt.Errorf("update calendar status: %w", err)
	}
	return nil
}

// SaveDetectedMessage stores a keyword match and returns its ID.
func (s *SQLiteStore) SaveDetectedMessage(ctx context.Context, userID, chatID int64, text string, keywords []string) (int64, error) {
	query := `
	INSERT INTO detected_messages (user_id, chat_id, message_text, detected_keywords, created_at)
	VALUES (?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		userID, chatID, text, strings.Join(keywords, keywordSeparator), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert detected message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("detected message id: %w", err)
	}
	return id, nil
}

// GetDetectedMessage retrieves a detected message by ID.
func (s *SQLiteStore) GetDetectedMessage(ctx context.Context, messageID int64) (*domain.DetectedMessage, error) {
	query := `
		SELECT id, user_id, chat_id, message_text, detected_keywords,
		       is_confirmed, calendar_event_id, created_at
		FROM detected_messages WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, messageID)

	var msg domain.DetectedMessage
	var keywords string
	var confirmed int
	var eventID sql.NullString
	var createdAt int64

	err := row.Scan(
		&msg.ID, &msg.UserID, &msg.ChatID, &msg.Text, &keywords,
		&confirmed, &eventID, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan detected message: %w", err)
	}

	if keywords != "" {
		msg.Keywords = strings.Split(keywords, keywordSeparator)
	}
	msg.Confirmed = confirmed != 0
	msg.CalendarEventID = eventID.String
	msg.CreatedAt = time.Unix(createdAt, 0)

	return &msg, nil
}

// ConfirmDetectedMessage marks a detection confirmed and attaches its event.
func (s *SQLiteStore) ConfirmDetectedMessage(ctx context.Context, messageID int64, eventID string) error {
	query := `UPDATE detected_messages SET is_confirmed = 1, calendar_event_id = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, nullable(eventID), messageID)
	if err != nil {
		return fmt.Errorf("confirm detected message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("detected message %d not found", messageID)
	}
	return nil
}

// SaveCalendarEvent stores the local record of a created calendar event.
func (s *SQLiteStore) SaveCalendarEvent(ctx context.Context, event *domain.CalendarEvent) error {
	query := `
	INSERT INTO calendar_events (user_id, event_id, title, description,
	                             start_time, end_time, calendar_link, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		event.UserID, event.EventID, event.Title, nullable(event.Description),
		event.StartTime.Unix(), event.EndTime.Unix(), nullable(event.HTMLLink),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert calendar event: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// execWithRetry runs fn with exponential backoff on SQLITE_BUSY errors.
func (s *SQLiteStore) execWithRetry(ctx context.Context, fn func() error) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			return err
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("sqlite busy, retrying", "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
