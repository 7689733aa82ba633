package timeline

import (
	"encoding/json"
	"time"
)

// Tweet is one normalized bookmarked tweet. Legacy carries the source
// payload (text, entities, counts, flags) verbatim.
type Tweet struct {
	ID             string          `json:"id"`
	AuthorID       string          `json:"author_id"`
	ConversationID string          `json:"conversation_id"`
	SelfThreadID   string          `json:"self_thread_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Legacy         json.RawMessage `json:"legacy"`
}

// Author is one normalized tweet author. Legacy carries the source
// profile payload verbatim.
type Author struct {
	ID         string          `json:"id"`
	ScreenName string          `json:"screen_name"`
	CreatedAt  time.Time       `json:"created_at"`
	Legacy     json.RawMessage `json:"legacy"`
}

// Cursor is the opaque pagination token pair extracted from the trailing
// two timeline entries. Top points toward more recent bookmarks, Bottom
// toward older ones.
type Cursor struct {
	Top    string `json:"top"`
	Bottom string `json:"bottom"`
}

// --- Wire types for the bookmark timeline response ---

type rawResponse struct {
	Data struct {
		BookmarkTimeline struct {
			Timeline timelineObj `json:"timeline"`
		} `json:"bookmark_timeline"`
	} `json:"data"`
	Errors []APIError `json:"errors"`
}

// APIError is one element of an error-shaped response's errors array
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type timelineObj struct {
	Instructions []timelineInstruction `json:"instructions"`
}

type timelineInstruction struct {
	Type    string          `json:"type"`
	Entries []timelineEntry `json:"entries"`
}

type timelineEntry struct {
	EntryID   string          `json:"entryId"`
	SortIndex string          `json:"sortIndex"`
	Content   timelineContent `json:"content"`
}

type timelineContent struct {
	EntryType   string          `json:"entryType"`
	TypeName    string          `json:"__typename"`
	ItemContent json.RawMessage `json:"itemContent"`
	Value       string          `json:"value"`
	CursorType  string          `json:"cursorType"`
}

func (c timelineContent) isCursor() bool {
	return c.EntryType == "TimelineTimelineCursor" || c.TypeName == "TimelineTimelineCursor"
}

type timelineItem struct {
	TypeName     string `json:"__typename"`
	TweetResults struct {
		Result tweetResult `json:"result"`
	} `json:"tweet_results"`
}

type userResult struct {
	TypeName string          `json:"__typename"`
	RestID   string          `json:"rest_id"`
	Legacy   json.RawMessage `json:"legacy"`
}

type userLegacy struct {
	ScreenName string `json:"screen_name"`
	CreatedAt  string `json:"created_at"`
}

type tweetResult struct {
	TypeName string `json:"__typename"`
	RestID   string `json:"rest_id"`
	Core     struct {
		UserResults struct {
			Result userResult `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	Legacy json.RawMessage `json:"legacy"`
}

type tweetLegacy struct {
	CreatedAt      string `json:"created_at"`
	UserIDStr      string `json:"user_id_str"`
	ConversationID string `json:"conversation_id_str"`
	SelfThread     struct {
		IDStr string `json:"id_str"`
	} `json:"self_thread"`
}
