// Package store provides durable, deduplicated storage for bookmarked
// tweets, their authors and the singleton pagination cursor, backed by
// SQLite. Batch writes are all-or-nothing: authors and tweets from one
// batch are committed atomically together or not at all.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"xbookmarks/pkg/logger"
	"xbookmarks/pkg/timeline"
)

// InMemoryPath selects an ephemeral database for tests and one-off runs
const InMemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS authors (
	id TEXT PRIMARY KEY,
	screen_name TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP NOT NULL,
	payload TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tweets (
	id TEXT PRIMARY KEY,
	author_id TEXT NOT NULL REFERENCES authors(id),
	conversation_id TEXT NOT NULL DEFAULT '',
	self_thread_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tweets_author_id ON tweets(author_id);

CREATE TABLE IF NOT EXISTS cursor (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	top TEXT NOT NULL,
	bottom TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Store owns the schema and connection for the bookmark database.
// Write transactions are serialized internally; no two may be in flight
// concurrently against the same underlying storage.
type Store struct {
	path   string
	logger logger.Logger

	mu sync.Mutex
	db *sql.DB
}

// New creates a store for the database at path. Use InMemoryPath for an
// ephemeral database. The connection is not opened until Initialize.
func New(path string) *Store {
	return &Store{
		path:   path,
		logger: logger.GetLogger(),
	}
}

// Initialize opens the connection and establishes the schema. It is
// idempotent: existing tables and indexes are left untouched.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	dsn := s.path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return &InitializationError{Err: fmt.Errorf("open database: %w", err)}
	}

	// A single connection keeps an in-memory database alive across the
	// pool and serializes access at the driver level.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return &InitializationError{Err: fmt.Errorf("establish schema: %w", err)}
	}

	s.db = db
	s.logger.InfoWithFields("Bookmark store initialized", map[string]interface{}{
		"path": s.path,
	})
	return nil
}

// InsertRecords deduplicates the batch and upserts authors then tweets
// in one transaction. Within a batch, duplicates keep their first
// occurrence's position and their last occurrence's payload; across
// calls the most recent write wins. Author rows are written before the
// tweets that reference them.
func (s *Store) InsertRecords(ctx context.Context, tweets []timeline.Tweet, authors []timeline.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return &WriteError{Err: fmt.Errorf("store not initialized")}
	}

	tweets = dedupeTweets(tweets)
	authors = dedupeAuthors(authors)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &WriteError{Err: fmt.Errorf("begin transaction: %w", err)}
	}

	if err := upsertAuthors(ctx, tx, authors); err != nil {
		tx.Rollback()
		return &WriteError{Err: err}
	}
	if err := upsertTweets(ctx, tx, tweets); err != nil {
		tx.Rollback()
		return &WriteError{Err: err}
	}

	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return &WriteError{Err: fmt.Errorf("commit: %w", err)}
	}

	s.logger.InfoWithFields("Records committed", map[string]interface{}{
		"tweets":  len(tweets),
		"authors": len(authors),
	})
	return nil
}

func upsertAuthors(ctx context.Context, tx *sql.Tx, authors []timeline.Author) error {
	query := `
	INSERT INTO authors (id, screen_name, created_at, payload)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		screen_name = excluded.screen_name,
		created_at = excluded.created_at,
		payload = excluded.payload
	`
	for _, author := range authors {
		if _, err := tx.ExecContext(ctx, query,
			author.ID, author.ScreenName, author.CreatedAt, string(author.Legacy),
		); err != nil {
			return fmt.Errorf("upsert author %s: %w", author.ID, err)
		}
	}
	return nil
}

func upsertTweets(ctx context.Context, tx *sql.Tx, tweets []timeline.Tweet) error {
	query := `
	INSERT INTO tweets (id, author_id, conversation_id, self_thread_id, created_at, payload)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		author_id = excluded.author_id,
		conversation_id = excluded.conversation_id,
		self_thread_id = excluded.self_thread_id,
		created_at = excluded.created_at,
		payload = excluded.payload
	`
	for _, tweet := range tweets {
		if _, err := tx.ExecContext(ctx, query,
			tweet.ID, tweet.AuthorID, tweet.ConversationID, tweet.SelfThreadID,
			tweet.CreatedAt, string(tweet.Legacy),
		); err != nil {
			return fmt.Errorf("upsert tweet %s: %w", tweet.ID, err)
		}
	}
	return nil
}

// PersistCursorState upserts the singleton cursor row in its own
// transaction. A fixed sentinel key guarantees at most one row exists.
func (s *Store) PersistCursorState(ctx context.Context, cursor timeline.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return &WriteError{Err: fmt.Errorf("store not initialized")}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &WriteError{Err: fmt.Errorf("begin transaction: %w", err)}
	}

	query := `
	INSERT INTO cursor (id, top, bottom, updated_at)
	VALUES (0, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		top = excluded.top,
		bottom = excluded.bottom,
		updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, cursor.Top, cursor.Bottom, time.Now().UTC()); err != nil {
		tx.Rollback()
		return &WriteError{Err: fmt.Errorf("upsert cursor: %w", err)}
	}

	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return &WriteError{Err: fmt.Errorf("commit cursor: %w", err)}
	}

	s.logger.DebugWithFields("Cursor persisted", map[string]interface{}{
		"top":    cursor.Top,
		"bottom": cursor.Bottom,
	})
	return nil
}

// GetCursorState returns the persisted cursor, or nil if none has ever
// been written.
func (s *Store) GetCursorState(ctx context.Context) (*timeline.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, &ReadError{Err: fmt.Errorf("store not initialized")}
	}

	var cursor timeline.Cursor
	err := s.db.QueryRowContext(ctx, `SELECT top, bottom FROM cursor WHERE id = 0`).
		Scan(&cursor.Top, &cursor.Bottom)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ReadError{Err: fmt.Errorf("read cursor: %w", err)}
	}
	return &cursor, nil
}

// GetRecordByID returns the tweet with the given id, or nil if absent
func (s *Store) GetRecordByID(ctx context.Context, id string) (*timeline.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, &ReadError{Err: fmt.Errorf("store not initialized")}
	}

	query := `
	SELECT id, author_id, conversation_id, self_thread_id, created_at, payload
	FROM tweets WHERE id = ?
	`
	var tweet timeline.Tweet
	var payload string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&tweet.ID, &tweet.AuthorID, &tweet.ConversationID, &tweet.SelfThreadID,
		&tweet.CreatedAt, &payload,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ReadError{Err: fmt.Errorf("read tweet %s: %w", id, err)}
	}
	tweet.Legacy = json.RawMessage(payload)
	return &tweet, nil
}

// GetAuthorOf returns the author of the tweet with the given id, or nil
// if the tweet is absent.
func (s *Store) GetAuthorOf(ctx context.Context, tweetID string) (*timeline.Author, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, &ReadError{Err: fmt.Errorf("store not initialized")}
	}

	query := `
	SELECT a.id, a.screen_name, a.created_at, a.payload
	FROM authors a
	JOIN tweets t ON t.author_id = a.id
	WHERE t.id = ?
	`
	var author timeline.Author
	var payload string
	err := s.db.QueryRowContext(ctx, query, tweetID).Scan(
		&author.ID, &author.ScreenName, &author.CreatedAt, &payload,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ReadError{Err: fmt.Errorf("read author of tweet %s: %w", tweetID, err)}
	}
	author.Legacy = json.RawMessage(payload)
	return &author, nil
}

// CountTweets returns the number of stored tweets
func (s *Store) CountTweets(ctx context.Context) (int, error) {
	return s.count(ctx, "tweets")
}

// CountAuthors returns the number of stored authors
func (s *Store) CountAuthors(ctx context.Context) (int, error) {
	return s.count(ctx, "authors")
}

func (s *Store) count(ctx context.Context, table string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return 0, &ReadError{Err: fmt.Errorf("store not initialized")}
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, &ReadError{Err: fmt.Errorf("count %s: %w", table, err)}
	}
	return n, nil
}

// Close releases the underlying connection. It is a no-op if Initialize
// was never called and is safe to call repeatedly.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	if err != nil {
		return &CloseError{Err: err}
	}
	return nil
}

// dedupeTweets collapses duplicate ids: first occurrence keeps its
// position, last occurrence keeps its payload.
func dedupeTweets(tweets []timeline.Tweet) []timeline.Tweet {
	index := make(map[string]int, len(tweets))
	out := make([]timeline.Tweet, 0, len(tweets))
	for _, tweet := range tweets {
		if i, ok := index[tweet.ID]; ok {
			out[i] = tweet
			continue
		}
		index[tweet.ID] = len(out)
		out = append(out, tweet)
	}
	return out
}

func dedupeAuthors(authors []timeline.Author) []timeline.Author {
	index := make(map[string]int, len(authors))
	out := make([]timeline.Author, 0, len(authors))
	for _, author := range authors {
		if i, ok := index[author.ID]; ok {
			out[i] = author
			continue
		}
		index[author.ID] = len(out)
		out = append(out, author)
	}
	return out
}
