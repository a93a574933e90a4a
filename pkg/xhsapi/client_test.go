package xhsapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejianfang/xhs-crawl/pkg/signer"
	"github.com/hejianfang/xhs-crawl/pkg/transport"
)

func TestClient_NoteInfo_NormalizesCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"code":0,"data":{"note_id":"n1","xsec_token":"tok","comment_count":"2.1万"}}`)
	}))
	defer srv.Close()

	tr := transport.New(srv.URL, signer.Passthrough{}, time.Second)
	c := New(tr)

	info, res := c.NoteInfo(context.Background(), "https://example/explore/n1", "cookie")
	require.Equal(t, transport.OK, res.Outcome)
	assert.Equal(t, "n1", info.NoteID)
	assert.Equal(t, 21000, info.ExpectedComments)
}

func TestClient_TopCommentsPage_DecodesAndNormalizesSubCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"code":0,"data":{"comments":[{"comment_id":"c1","note_id":"n1","content":"hi","sub_comment_count":"3.5w"}],"has_more":false}}`)
	}))
	defer srv.Close()

	tr := transport.New(srv.URL, signer.Passthrough{}, time.Second)
	c := New(tr)

	page, res := c.TopCommentsPage(context.Background(), "n1", "", "tok", "cookie")
	require.Equal(t, transport.OK, res.Outcome)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, 35000, page.Comments[0].ExpectedSubCount)
	assert.False(t, page.HasMore)
}

func TestClient_SubCommentsPage_PropagatesProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"code":0,"data":{"comments":"not-an-array"}}`)
	}))
	defer srv.Close()

	tr := transport.New(srv.URL, signer.Passthrough{}, time.Second)
	c := New(tr)

	_, res := c.SubCommentsPage(context.Background(), "parent1", "n1", "", "tok", "cookie")
	assert.Equal(t, transport.ProtocolError, res.Outcome)
	assert.Error(t, res.Err)
}

func TestClient_SearchNotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"code":0,"data":{"items":[{"note_id":"n1","xsec_token":"tok"}],"has_more":true}}`)
	}))
	defer srv.Close()

	tr := transport.New(srv.URL, signer.Passthrough{}, time.Second)
	c := New(tr)

	resp, res := c.SearchNotes(context.Background(), "query", 1, "cookie")
	require.Equal(t, transport.OK, res.Outcome)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "n1", resp.Items[0].NoteID)
	assert.True(t, resp.HasMore)
}
