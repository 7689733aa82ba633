// Package bookmarks bridges one captured bookmark timeline exchange into
// parsed records. Retrying a failed capture is the orchestrator's job:
// re-arm interception and re-navigate, then Init a fresh Requester.
package bookmarks

import (
	"fmt"
	"net/url"

	"xbookmarks/pkg/timeline"
)

// Requester holds the captured request context of one bookmark timeline
// exchange and the records parsed from its response. The headers and
// query parameters are kept for constructing follow-up paginated
// requests.
type Requester struct {
	headers map[string]string
	params  url.Values

	tweets  []timeline.Tweet
	authors []timeline.Author
	cursor  timeline.Cursor

	initialized bool
}

// NewRequester creates an empty requester. Records are empty until Init
// is called with a captured exchange.
func NewRequester() *Requester {
	return &Requester{}
}

// Init stores the captured request context and parses the response
// eagerly, so shape failures surface immediately rather than lazily.
func (r *Requester) Init(headers map[string]string, params url.Values, response []byte) error {
	if apiErrors, ok := timeline.IsErrorResponse(response); ok {
		return fmt.Errorf("error-shaped bookmark response: %s (code %d)", apiErrors[0].Message, apiErrors[0].Code)
	}

	parser := timeline.NewParser(response)
	tweets, authors, err := parser.Records()
	if err != nil {
		return fmt.Errorf("parse bookmark timeline: %w", err)
	}
	cursor, err := parser.Cursor()
	if err != nil {
		return fmt.Errorf("parse bookmark cursor: %w", err)
	}

	r.headers = headers
	r.params = params
	r.tweets = tweets
	r.authors = authors
	r.cursor = cursor
	r.initialized = true
	return nil
}

// Initialized reports whether a captured exchange has been parsed
func (r *Requester) Initialized() bool {
	return r.initialized
}

// Tweets returns the parsed tweet records; empty before Init
func (r *Requester) Tweets() []timeline.Tweet {
	return r.tweets
}

// Authors returns the parsed author records, one per tweet; empty before Init
func (r *Requester) Authors() []timeline.Author {
	return r.authors
}

// Cursor returns the pagination cursor pair from the captured response
func (r *Requester) Cursor() timeline.Cursor {
	return r.cursor
}

// Headers returns the captured request headers
func (r *Requester) Headers() map[string]string {
	return r.headers
}

// Params returns the captured request query parameters
func (r *Requester) Params() url.Values {
	return r.params
}
