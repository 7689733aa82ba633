package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xbookmarks/pkg/config"
	"xbookmarks/pkg/events"
	"xbookmarks/pkg/logger"
	"xbookmarks/pkg/session"
	"xbookmarks/pkg/store"
)

// TestBookmarkCaptureWorkflow drives the whole pipeline against a
// scripted browser: attach, log in, capture one bookmark timeline
// exchange, persist the records and cursor, and read them back.
func TestBookmarkCaptureWorkflow(t *testing.T) {
	ctx := context.Background()

	page := newScriptedPage(timelineFixture)
	registry := session.NewRegistry()
	registry.Register("scripted", &scriptedDriver{page: page})

	var signals []events.Signal
	emitter := events.NewEmitter()
	emitter.Subscribe(func(s events.Signal) { signals = append(signals, s) })

	cfg := config.DefaultConfig()
	cfg.Browser.BaseURL = "https://x.test"

	machine := session.NewMachine(&cfg.Browser, registry, emitter, logger.NewTestLogger())

	require.NoError(t, machine.AttachSession(ctx, "scripted"))
	require.Equal(t, session.StateLoggedOut, machine.State())

	page.locationAfterLogin = "https://x.test/home"
	require.NoError(t, machine.LogIn(ctx, session.Credentials{Username: "alice", Password: "pw"}))
	require.Equal(t, session.StateLoggedIn, machine.State())

	require.NoError(t, machine.StartFetchingBookmarks(ctx))
	requester := machine.Requester()
	require.NotNil(t, requester)
	require.Len(t, requester.Tweets(), 3)

	st := store.New(store.InMemoryPath)
	require.NoError(t, st.Initialize(ctx))
	defer st.Close()

	require.NoError(t, st.InsertRecords(ctx, requester.Tweets(), requester.Authors()))
	require.NoError(t, st.PersistCursorState(ctx, requester.Cursor()))

	tweets, err := st.CountTweets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, tweets)

	// Two of the three bookmarks share an author
	authors, err := st.CountAuthors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, authors)

	cursor, err := st.GetCursorState(ctx)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, "top-token", cursor.Top)
	assert.Equal(t, "bottom-token", cursor.Bottom)

	tweet, err := st.GetRecordByID(ctx, "1002")
	require.NoError(t, err)
	require.NotNil(t, tweet)
	assert.Equal(t, "200", tweet.AuthorID)

	author, err := st.GetAuthorOf(ctx, "1003")
	require.NoError(t, err)
	require.NotNil(t, author)
	assert.Equal(t, "bob", author.ScreenName)

	require.NoError(t, machine.TearDown(ctx))
	assert.Equal(t, session.StateInactive, machine.State())

	for _, s := range signals {
		assert.NotEqual(t, events.KindUserError, s.Kind, "no user error expected in the happy path")
		assert.NotEqual(t, events.KindInternalError, s.Kind, "no internal error expected in the happy path")
	}
}

// TestRepeatedFetchDeduplicates runs the capture twice against the same
// store and verifies records are upserted, not duplicated.
func TestRepeatedFetchDeduplicates(t *testing.T) {
	ctx := context.Background()

	page := newScriptedPage(timelineFixture)
	registry := session.NewRegistry()
	registry.Register("scripted", &scriptedDriver{page: page})

	cfg := config.DefaultConfig()
	cfg.Browser.BaseURL = "https://x.test"
	machine := session.NewMachine(&cfg.Browser, registry, events.NewEmitter(), logger.NewTestLogger())

	require.NoError(t, machine.AttachSession(ctx, "scripted"))
	page.locationAfterLogin = "https://x.test/home"
	require.NoError(t, machine.LogIn(ctx, session.Credentials{Username: "alice", Password: "pw"}))

	st := store.New(store.InMemoryPath)
	require.NoError(t, st.Initialize(ctx))
	defer st.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, machine.StartFetchingBookmarks(ctx))
		requester := machine.Requester()
		require.NoError(t, st.InsertRecords(ctx, requester.Tweets(), requester.Authors()))
		require.NoError(t, st.PersistCursorState(ctx, requester.Cursor()))
	}

	tweets, err := st.CountTweets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, tweets)

	authors, err := st.CountAuthors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, authors)
}
