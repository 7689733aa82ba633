package integration

import (
	"context"
	"net/url"

	"xbookmarks/pkg/session"
)

// scriptedDriver drives the session machinery against canned pages and
// a canned bookmark timeline exchange instead of a real browser.
type scriptedDriver struct {
	page *scriptedPage
}

func (d *scriptedDriver) Launch(ctx context.Context) (session.BrowserSession, error) {
	return &scriptedBrowser{page: d.page}, nil
}

type scriptedBrowser struct {
	page *scriptedPage
}

func (b *scriptedBrowser) NewPage(ctx context.Context) (session.Page, error) {
	return b.page, nil
}

func (b *scriptedBrowser) Close(ctx context.Context) error {
	return nil
}

type scriptedPage struct {
	location           string
	locationAfterLogin string
	response           []byte
}

func newScriptedPage(response string) *scriptedPage {
	return &scriptedPage{response: []byte(response)}
}

func (p *scriptedPage) Goto(ctx context.Context, target string) error {
	p.location = target
	return nil
}

func (p *scriptedPage) Type(ctx context.Context, selector, text string) error {
	return nil
}

func (p *scriptedPage) Click(ctx context.Context, selector string) error {
	if p.locationAfterLogin != "" {
		p.location = p.locationAfterLogin
	}
	return nil
}

func (p *scriptedPage) WaitForRequest(ctx context.Context, urlPattern string) (session.CapturedRequest, error) {
	return &scriptedRequest{}, nil
}

func (p *scriptedPage) WaitForResponse(ctx context.Context, urlPattern string) (session.CapturedResponse, error) {
	return &scriptedResponse{body: p.response}, nil
}

func (p *scriptedPage) URL() string {
	return p.location
}

type scriptedRequest struct{}

func (r *scriptedRequest) Method() string { return "GET" }
func (r *scriptedRequest) URL() string {
	return "https://x.test/i/api/graphql/abc/Bookmarks"
}
func (r *scriptedRequest) Headers() map[string]string {
	return map[string]string{"authorization": "Bearer token"}
}
func (r *scriptedRequest) Query() url.Values {
	return url.Values{"variables": []string{`{"count":20}`}}
}

type scriptedResponse struct {
	body []byte
}

func (r *scriptedResponse) Status() int           { return 200 }
func (r *scriptedResponse) Body() ([]byte, error) { return r.body, nil }

// timelineFixture is a bookmark timeline with three tweets from two
// authors, followed by the top and bottom cursors.
const timelineFixture = `{
	"data": {"bookmark_timeline": {"timeline": {"instructions": [{
		"type": "TimelineAddEntries",
		"entries": [
			{"entryId": "tweet-1001", "content": {
				"entryType": "TimelineTimelineItem",
				"itemContent": {"tweet_results": {"result": {
					"rest_id": "1001",
					"core": {"user_results": {"result": {
						"rest_id": "200",
						"legacy": {"screen_name": "alice", "created_at": "Wed Feb 14 09:00:00 +0000 2018"}
					}}},
					"legacy": {"created_at": "Mon Jul 10 15:04:05 +0000 2023", "user_id_str": "200", "conversation_id_str": "1001"}
				}}}
			}},
			{"entryId": "tweet-1002", "content": {
				"entryType": "TimelineTimelineItem",
				"itemContent": {"tweet_results": {"result": {
					"rest_id": "1002",
					"core": {"user_results": {"result": {
						"rest_id": "200",
						"legacy": {"screen_name": "alice", "created_at": "Wed Feb 14 09:00:00 +0000 2018"}
					}}},
					"legacy": {"created_at": "Tue Jul 11 08:30:00 +0000 2023", "user_id_str": "200", "conversation_id_str": "1002"}
				}}}
			}},
			{"entryId": "tweet-1003", "content": {
				"entryType": "TimelineTimelineItem",
				"itemContent": {"tweet_results": {"result": {
					"rest_id": "1003",
					"core": {"user_results": {"result": {
						"rest_id": "300",
						"legacy": {"screen_name": "bob", "created_at": "Thu Mar 01 12:00:00 +0000 2012"}
					}}},
					"legacy": {"created_at": "Wed Jul 12 19:45:00 +0000 2023", "user_id_str": "300", "conversation_id_str": "1003"}
				}}}
			}},
			{"entryId": "cursor-top-1", "content": {"entryType": "TimelineTimelineCursor", "value": "top-token", "cursorType": "Top"}},
			{"entryId": "cursor-bottom-1", "content": {"entryType": "TimelineTimelineCursor", "value": "bottom-token", "cursorType": "Bottom"}}
		]
	}]}}}
}`
