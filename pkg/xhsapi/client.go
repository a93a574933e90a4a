// Package xhsapi is the thin typed Endpoint Client layer over pkg/transport
// (spec.md §4.3): one method per platform operation, stateless, with no
// retry or credential logic of its own — that belongs to pkg/retrypolicy and
// pkg/credential respectively.
package xhsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hejianfang/xhs-crawl/pkg/transport"
)

const (
	pathNoteInfo    = "/api/sns/web/v1/feed"
	pathTopComments = "/api/sns/web/v2/comment/page"
	pathSubComments = "/api/sns/web/v2/comment/sub/page"
	pathSearch      = "/api/sns/web/v1/search/notes"
)

// Client is the stateless typed layer over one Transport.
type Client struct {
	Transport *transport.Transport
}

// New builds an Endpoint Client over the given Transport.
func New(t *transport.Transport) *Client {
	return &Client{Transport: t}
}

// NoteInfo fetches a note's body plus its embedded signed-token echo
// (spec.md §4.3).
func (c *Client) NoteInfo(ctx context.Context, noteURL, credentialToken string) (NoteInfoResponse, transport.Result) {
	body, _ := json.Marshal(map[string]string{"url": noteURL})
	res := c.Transport.Do(ctx, http.MethodPost, pathNoteInfo, body, credentialToken, false)
	if res.Outcome != transport.OK {
		return NoteInfoResponse{}, res
	}
	var out NoteInfoResponse
	if err := json.Unmarshal(res.Response.Data, &out); err != nil {
		res.Outcome = transport.ProtocolError
		res.Err = fmt.Errorf("decoding noteInfo response: %w", err)
		return NoteInfoResponse{}, res
	}
	if err := out.NormalizeCounts(); err != nil {
		res.Outcome = transport.ProtocolError
		res.Err = fmt.Errorf("normalizing noteInfo counts: %w", err)
		return NoteInfoResponse{}, res
	}
	return out, res
}

// TopCommentsPage fetches one page of top-level comments for a note
// (spec.md §4.3/§4.5.1).
func (c *Client) TopCommentsPage(ctx context.Context, noteID, cursor, signedToken, credentialToken string) (CommentPageResponse, transport.Result) {
	body, _ := json.Marshal(map[string]string{
		"note_id":     noteID,
		"cursor":      cursor,
		"xsec_token":  signedToken,
	})
	res := c.Transport.Do(ctx, http.MethodPost, pathTopComments, body, credentialToken, true)
	return decodePage(res)
}

// SubCommentsPage fetches one page of a parent comment's sub-comments
// (spec.md §4.3/§4.5.2).
func (c *Client) SubCommentsPage(ctx context.Context, parentID, noteID, cursor, signedToken, credentialToken string) (CommentPageResponse, transport.Result) {
	body, _ := json.Marshal(map[string]string{
		"root_comment_id": parentID,
		"note_id":         noteID,
		"cursor":          cursor,
		"xsec_token":      signedToken,
	})
	res := c.Transport.Do(ctx, http.MethodPost, pathSubComments, body, credentialToken, true)
	return decodePage(res)
}

func decodePage(res transport.Result) (CommentPageResponse, transport.Result) {
	if res.Outcome != transport.OK {
		return CommentPageResponse{}, res
	}
	var out CommentPageResponse
	if err := json.Unmarshal(res.Response.Data, &out); err != nil {
		res.Outcome = transport.ProtocolError
		res.Err = fmt.Errorf("decoding comment page response: %w", err)
		return CommentPageResponse{}, res
	}
	for i := range out.Comments {
		if err := out.Comments[i].NormalizeCounts(); err != nil {
			res.Outcome = transport.ProtocolError
			res.Err = fmt.Errorf("normalizing comment %s counts: %w", out.Comments[i].CommentID, err)
			return CommentPageResponse{}, res
		}
	}
	return out, res
}

// SearchNotes lists note descriptors matching a keyword query (spec.md
// §4.3; out of scope is the ranking logic behind it, not the call shape).
func (c *Client) SearchNotes(ctx context.Context, query string, page int, credentialToken string) (SearchResponse, transport.Result) {
	body, _ := json.Marshal(map[string]any{
		"keyword": query,
		"page":    page,
	})
	res := c.Transport.Do(ctx, http.MethodPost, pathSearch, body, credentialToken, false)
	if res.Outcome != transport.OK {
		return SearchResponse{}, res
	}
	var out SearchResponse
	if err := json.Unmarshal(res.Response.Data, &out); err != nil {
		res.Outcome = transport.ProtocolError
		res.Err = fmt.Errorf("decoding search response: %w", err)
		return SearchResponse{}, res
	}
	return out, res
}
