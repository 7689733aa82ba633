package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xbookmarks/pkg/timeline"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(InMemoryPath)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func makeAuthor(id, screenName string) timeline.Author {
	return timeline.Author{
		ID:         id,
		ScreenName: screenName,
		CreatedAt:  time.Date(2018, 2, 14, 9, 0, 0, 0, time.UTC),
		Legacy:     json.RawMessage(fmt.Sprintf(`{"screen_name":%q}`, screenName)),
	}
}

func makeTweet(id, authorID, text string) timeline.Tweet {
	return timeline.Tweet{
		ID:             id,
		AuthorID:       authorID,
		ConversationID: id,
		CreatedAt:      time.Date(2023, 7, 10, 15, 4, 5, 0, time.UTC),
		Legacy:         json.RawMessage(fmt.Sprintf(`{"full_text":%q}`, text)),
	}
}

func TestInitializeIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "bookmarks.db"))
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Initialize(ctx))

	require.NoError(t, s.InsertRecords(ctx,
		[]timeline.Tweet{makeTweet("1", "a", "hi")},
		[]timeline.Author{makeAuthor("a", "alice")},
	))
}

func TestInsertAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tweets := []timeline.Tweet{
		makeTweet("1001", "200", "first"),
		makeTweet("1002", "201", "second"),
	}
	authors := []timeline.Author{
		makeAuthor("200", "alice"),
		makeAuthor("201", "bob"),
	}
	require.NoError(t, s.InsertRecords(ctx, tweets, authors))

	tweet, err := s.GetRecordByID(ctx, "1001")
	require.NoError(t, err)
	require.NotNil(t, tweet)
	assert.Equal(t, "200", tweet.AuthorID)
	assert.JSONEq(t, `{"full_text":"first"}`, string(tweet.Legacy))

	author, err := s.GetAuthorOf(ctx, "1002")
	require.NoError(t, err)
	require.NotNil(t, author)
	assert.Equal(t, "bob", author.ScreenName)

	missing, err := s.GetRecordByID(ctx, "9999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	noAuthor, err := s.GetAuthorOf(ctx, "9999")
	require.NoError(t, err)
	assert.Nil(t, noAuthor)
}

func TestDedupWithinBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Same tweet id twice with different payloads: one row, the later
	// payload wins. Same author per tweet is the normal case.
	tweets := []timeline.Tweet{
		makeTweet("1001", "200", "early"),
		makeTweet("1002", "200", "other"),
		makeTweet("1001", "200", "late"),
	}
	authors := []timeline.Author{
		makeAuthor("200", "alice"),
		makeAuthor("200", "alice"),
		makeAuthor("200", "alice"),
	}
	require.NoError(t, s.InsertRecords(ctx, tweets, authors))

	n, err := s.CountTweets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountAuthors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tweet, err := s.GetRecordByID(ctx, "1001")
	require.NoError(t, err)
	require.NotNil(t, tweet)
	assert.JSONEq(t, `{"full_text":"late"}`, string(tweet.Legacy))
}

func TestDedupAcrossCalls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	authors := []timeline.Author{makeAuthor("200", "alice")}
	require.NoError(t, s.InsertRecords(ctx, []timeline.Tweet{makeTweet("1001", "200", "old")}, authors))
	require.NoError(t, s.InsertRecords(ctx, []timeline.Tweet{makeTweet("1001", "200", "new")}, authors))

	n, err := s.CountTweets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tweet, err := s.GetRecordByID(ctx, "1001")
	require.NoError(t, err)
	assert.JSONEq(t, `{"full_text":"new"}`, string(tweet.Legacy))
}

func TestInsertAtomicity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The second tweet references an author missing from both the batch
	// and the table, so the tweet upsert fails after the author upsert
	// succeeded. Nothing from the batch may remain.
	tweets := []timeline.Tweet{
		makeTweet("1001", "200", "fine"),
		makeTweet("1002", "does-not-exist", "doomed"),
	}
	authors := []timeline.Author{makeAuthor("200", "alice")}

	err := s.InsertRecords(ctx, tweets, authors)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.NotEmpty(t, writeErr.UserMessage())

	n, err := s.CountTweets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.CountAuthors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "authors from the failed batch must be rolled back")
}

func TestCursorSingleton(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cursor, err := s.GetCursorState(ctx)
	require.NoError(t, err)
	assert.Nil(t, cursor, "no cursor before the first write")

	require.NoError(t, s.PersistCursorState(ctx, timeline.Cursor{Top: "t1", Bottom: "b1"}))
	require.NoError(t, s.PersistCursorState(ctx, timeline.Cursor{Top: "t2", Bottom: "b2"}))
	require.NoError(t, s.PersistCursorState(ctx, timeline.Cursor{Top: "t3", Bottom: "b3"}))

	cursor, err = s.GetCursorState(ctx)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, "t3", cursor.Top)
	assert.Equal(t, "b3", cursor.Bottom)

	var n int
	s.mu.Lock()
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM cursor`).Scan(&n))
	s.mu.Unlock()
	assert.Equal(t, 1, n, "exactly one cursor row after repeated writes")
}

func TestOperationsBeforeInitialize(t *testing.T) {
	s := New(InMemoryPath)

	err := s.InsertRecords(context.Background(), nil, nil)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)

	_, err = s.GetCursorState(context.Background())
	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
}

func TestCloseIdempotent(t *testing.T) {
	s := New(InMemoryPath)

	// Safe to close a store that was never initialized
	require.NoError(t, s.Close())

	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestDurabilityAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bookmarks.db")
	ctx := context.Background()

	s := New(path)
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.InsertRecords(ctx,
		[]timeline.Tweet{makeTweet("1001", "200", "persisted")},
		[]timeline.Author{makeAuthor("200", "alice")},
	))
	require.NoError(t, s.PersistCursorState(ctx, timeline.Cursor{Top: "t", Bottom: "b"}))
	require.NoError(t, s.Close())

	reopened := New(path)
	require.NoError(t, reopened.Initialize(ctx))
	defer reopened.Close()

	tweet, err := reopened.GetRecordByID(ctx, "1001")
	require.NoError(t, err)
	require.NotNil(t, tweet)

	cursor, err := reopened.GetCursorState(ctx)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, "t", cursor.Top)
}
