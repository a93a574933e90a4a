package xhsapi

import "encoding/json"

// Author is the minimal author shape spec.md §4.5.4 needs attached to every
// comment record. Unknown wire fields are tolerated and dropped.
type Author struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
}

// CommentRecord is one comment as returned by the wire, before the walker
// stamps it with level/parent_id (spec.md §3: "level and parent_id are set
// by the walker, not the wire").
type CommentRecord struct {
	CommentID        string          `json:"comment_id"`
	NoteID           string          `json:"note_id"`
	Body             string          `json:"content"`
	Author           Author          `json:"author"`
	Timestamp        int64           `json:"create_time"`
	ExpectedSubCount int             `json:"-"`
	OwnSubCursor     string          `json:"-"`
	RawSubCount      json.RawMessage `json:"sub_comment_count,omitempty"`

	// SubComments is the server's embedded nested hint. The walker uses it
	// as the parent's direct replies when it holds at least ExpectedSubCount
	// entries, and otherwise fetches the replies by parent id instead.
	SubComments []CommentRecord `json:"sub_comments,omitempty"`
}

// NormalizeCounts parses RawSubCount into ExpectedSubCount using the
// flexible numeric-with-suffix parser. Call once after unmarshaling.
func (c *CommentRecord) NormalizeCounts() error {
	if len(c.RawSubCount) == 0 {
		return nil
	}
	n, err := ParseCount(c.RawSubCount)
	if err != nil {
		return err
	}
	c.ExpectedSubCount = n
	return nil
}

// NoteInfoResponse is the wire shape of noteInfo (spec.md §4.3).
type NoteInfoResponse struct {
	NoteID           string          `json:"note_id"`
	Title            string          `json:"title"`
	Body             string          `json:"desc"`
	SignedToken      string          `json:"xsec_token"`
	RawCommentCount  json.RawMessage `json:"comment_count,omitempty"`
	ExpectedComments int             `json:"-"`
}

// NormalizeCounts parses RawCommentCount into ExpectedComments.
func (n *NoteInfoResponse) NormalizeCounts() error {
	if len(n.RawCommentCount) == 0 {
		return nil
	}
	c, err := ParseCount(n.RawCommentCount)
	if err != nil {
		return err
	}
	n.ExpectedComments = c
	return nil
}

// CommentPageResponse is the common page shape returned by both
// topCommentsPage and subCommentsPage (spec.md §4.3).
type CommentPageResponse struct {
	Comments []CommentRecord `json:"comments"`
	HasMore  bool            `json:"has_more"`
	Cursor   string          `json:"cursor,omitempty"`
}

// SearchNoteItem is one descriptor returned by searchNotes, shaped to feed
// inputlist.FromSearchResults (the search_to_json.py-derived supplemented
// feature).
type SearchNoteItem struct {
	NoteID      string `json:"note_id"`
	SignedToken string `json:"xsec_token"`
	Title       string `json:"title,omitempty"`
}

// SearchResponse is the wire shape of searchNotes.
type SearchResponse struct {
	Items   []SearchNoteItem `json:"items"`
	HasMore bool             `json:"has_more"`
}
