package transport

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
)

func TestDo_ClassifiesOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"code":0,"data":{"comments":[]}}`)
	}))
	defer srv.Close()

	tr := New(srv.URL, signer.Passthrough{}, time.Second)
	res := tr.Do(context.Background(), http.MethodGet, "/api/comment/page", nil, "cookie", true)
	assert.Equal(t, OK, res.Outcome)
}

func TestDo_ClassifiesRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"success":false,"code":%d,"msg":"rate limited"}`, RateLimitSentinel)
	}))
	defer srv.Close()

	tr := New(srv.URL, signer.Passthrough{}, time.Second)
	res := tr.Do(context.Background(), http.MethodGet, "/api/comment/page", nil, "cookie", true)
	assert.Equal(t, RateLimited, res.Outcome)
}

func TestDo_ClassifiesAuthExpiredOnEmptyDataWhenCommentsExpected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"code":-1,"data":{}}`)
	}))
	defer srv.Close()

	tr := New(srv.URL, signer.Passthrough{}, time.Second)
	res := tr.Do(context.Background(), http.MethodGet, "/api/comment/page", nil, "cookie", true)
	assert.Equal(t, AuthExpired, res.Outcome)
}

func TestDo_ClassifiesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := New(srv.URL, signer.Passthrough{}, time.Second)
	res := tr.Do(context.Background(), http.MethodGet, "/api/comment/page", nil, "cookie", true)
	assert.Equal(t, ServerError, res.Outcome)
}

func TestDo_ClassifiesUnknownOnGenericFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"code":-9999,"msg":"weird"}`)
	}))
	defer srv.Close()

	tr := New(srv.URL, signer.Passthrough{}, time.Second)
	res := tr.Do(context.Background(), http.MethodGet, "/api/note", nil, "cookie", false)
	assert.Equal(t, Unknown, res.Outcome)
}

func TestDo_RetriesTransportErrorTwiceThenGivesUp(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	tr := New(srv.URL, signer.Passthrough{}, time.Second)
	res := tr.Do(context.Background(), http.MethodGet, "/api/note", nil, "cookie", false)
	assert.Equal(t, TransportError, res.Outcome)
	require.GreaterOrEqual(t, calls, 2)
}
