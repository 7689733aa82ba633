// Package timeline converts one raw bookmark timeline API response into
// normalized tweet and author records plus a pagination cursor pair.
// Parsing is pure: a Parser holds no state beyond the memoized result
// for the single response it was constructed with.
package timeline

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// sourceTimeLayout is the date format the upstream API uses for
// created_at fields on both tweets and users.
const sourceTimeLayout = "Mon Jan 02 15:04:05 +0000 2006"

// MalformedTimelineError reports a response that violates the expected
// timeline shape. It is fatal to the current fetch: a shape violation
// indicates either an upstream API change or a degraded response, and is
// surfaced for operator decision rather than retried.
type MalformedTimelineError struct {
	Reason string
	Err    error
}

func (e *MalformedTimelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed timeline: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed timeline: %s", e.Reason)
}

func (e *MalformedTimelineError) Unwrap() error {
	return e.Err
}

// IsErrorResponse reports whether body is an error-shaped API response
// (a top-level errors array) and returns the carried errors. Callers
// must check this before constructing a Parser.
func IsErrorResponse(body []byte) ([]APIError, bool) {
	var raw struct {
		Errors []APIError `json:"errors"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false
	}
	return raw.Errors, len(raw.Errors) > 0
}

// Parser extracts records and cursor from one timeline response.
// The result is computed once on first access and memoized.
type Parser struct {
	body []byte

	once    sync.Once
	tweets  []Tweet
	authors []Author
	cursor  Cursor
	err     error
}

// NewParser creates a parser over one raw response body believed to be a
// successful timeline fetch.
func NewParser(body []byte) *Parser {
	return &Parser{body: body}
}

// Records returns the normalized tweets and their authors, one author
// per tweet in tweet order. The same author may appear once per tweet
// they authored; deduplication is the store's concern.
func (p *Parser) Records() ([]Tweet, []Author, error) {
	p.parse()
	return p.tweets, p.authors, p.err
}

// Cursor returns the pagination cursor pair
func (p *Parser) Cursor() (Cursor, error) {
	p.parse()
	return p.cursor, p.err
}

func (p *Parser) parse() {
	p.once.Do(func() {
		p.tweets, p.authors, p.cursor, p.err = parseTimeline(p.body)
	})
}

func parseTimeline(body []byte) ([]Tweet, []Author, Cursor, error) {
	var raw rawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, Cursor{}, &MalformedTimelineError{Reason: "response is not valid JSON", Err: err}
	}
	if len(raw.Errors) > 0 {
		return nil, nil, Cursor{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("error-shaped response: %s (code %d)", raw.Errors[0].Message, raw.Errors[0].Code),
		}
	}

	instructions := raw.Data.BookmarkTimeline.Timeline.Instructions
	if len(instructions) == 0 {
		return nil, nil, Cursor{}, &MalformedTimelineError{Reason: "no timeline instructions"}
	}
	entries := instructions[0].Entries

	// The entry list contract: zero or more tweet entries followed by
	// exactly two cursor entries, top then bottom.
	if len(entries) < 2 {
		return nil, nil, Cursor{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("entry list has %d entries, need at least 2 trailing cursors", len(entries)),
		}
	}

	topEntry := entries[len(entries)-2]
	bottomEntry := entries[len(entries)-1]
	if !topEntry.Content.isCursor() || !bottomEntry.Content.isCursor() {
		return nil, nil, Cursor{}, &MalformedTimelineError{Reason: "trailing entries are not cursor-shaped"}
	}
	cursor := Cursor{
		Top:    topEntry.Content.Value,
		Bottom: bottomEntry.Content.Value,
	}

	var tweets []Tweet
	var authors []Author
	for _, entry := range entries[:len(entries)-2] {
		tweet, author, err := parseTweetEntry(entry)
		if err != nil {
			return nil, nil, Cursor{}, err
		}
		tweets = append(tweets, tweet)
		authors = append(authors, author)
	}

	return tweets, authors, cursor, nil
}

func parseTweetEntry(entry timelineEntry) (Tweet, Author, error) {
	if entry.Content.isCursor() {
		return Tweet{}, Author{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("unexpected cursor entry %q before the trailing pair", entry.EntryID),
		}
	}
	if entry.Content.ItemContent == nil {
		return Tweet{}, Author{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("entry %q carries no item content", entry.EntryID),
		}
	}

	var item timelineItem
	if err := json.Unmarshal(entry.Content.ItemContent, &item); err != nil {
		return Tweet{}, Author{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("entry %q item content", entry.EntryID), Err: err,
		}
	}

	result := item.TweetResults.Result
	if result.RestID == "" {
		return Tweet{}, Author{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("entry %q has no tweet rest_id", entry.EntryID),
		}
	}
	if len(result.Legacy) == 0 {
		return Tweet{}, Author{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("tweet %s has no legacy payload", result.RestID),
		}
	}

	var legacy tweetLegacy
	if err := json.Unmarshal(result.Legacy, &legacy); err != nil {
		return Tweet{}, Author{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("tweet %s legacy payload", result.RestID), Err: err,
		}
	}

	author, err := parseAuthor(result.Core.UserResults.Result, result.RestID)
	if err != nil {
		return Tweet{}, Author{}, err
	}

	// The per-tweet author reference and the author's own id come from
	// different parts of the payload. They are assumed to name the same
	// identity; a disagreement is flagged, never guessed away.
	authorID := legacy.UserIDStr
	if authorID == "" {
		authorID = author.ID
	} else if authorID != author.ID {
		return Tweet{}, Author{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("tweet %s references author %s but carries author %s", result.RestID, authorID, author.ID),
		}
	}

	createdAt, err := parseSourceTime(legacy.CreatedAt)
	if err != nil {
		return Tweet{}, Author{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("tweet %s created_at", result.RestID), Err: err,
		}
	}

	tweet := Tweet{
		ID:             result.RestID,
		AuthorID:       authorID,
		ConversationID: legacy.ConversationID,
		SelfThreadID:   legacy.SelfThread.IDStr,
		CreatedAt:      createdAt,
		Legacy:         result.Legacy,
	}
	return tweet, author, nil
}

func parseAuthor(result userResult, tweetID string) (Author, error) {
	if result.RestID == "" {
		return Author{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("tweet %s has no author rest_id", tweetID),
		}
	}
	if len(result.Legacy) == 0 {
		return Author{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("author %s has no legacy payload", result.RestID),
		}
	}

	var legacy userLegacy
	if err := json.Unmarshal(result.Legacy, &legacy); err != nil {
		return Author{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("author %s legacy payload", result.RestID), Err: err,
		}
	}
	if legacy.ScreenName == "" {
		return Author{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("author %s has no screen name", result.RestID),
		}
	}

	createdAt, err := parseSourceTime(legacy.CreatedAt)
	if err != nil {
		return Author{}, &MalformedTimelineError{
			Reason: fmt.Sprintf("author %s created_at", result.RestID), Err: err,
		}
	}

	return Author{
		ID:         result.RestID,
		ScreenName: legacy.ScreenName,
		CreatedAt:  createdAt,
		Legacy:     result.Legacy,
	}, nil
}

func parseSourceTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}
	return time.Parse(sourceTimeLayout, value)
}
