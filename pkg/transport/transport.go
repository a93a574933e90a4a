// Package transport wraps one HTTP call with request signing, proxy
// selection, and outcome classification (spec.md §4.1). Transport owns no
// credential state and no retry beyond its own tiny network-fault retry.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hejianfang/xhs-crawl/pkg/signer"
)

// Response is the parsed JSON envelope every platform endpoint returns,
// tolerant of unknown fields per the design notes of SPEC_FULL.md §9.
type Response struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// Result is everything a caller needs from one Transport.Do call.
type Result struct {
	Outcome    Outcome
	Response   Response
	StatusCode int
	Err        error
}

// ProxySelector returns the proxy URL to use for one call, or "" for none.
// A nil ProxySelector means no proxy is used.
type ProxySelector func() string

// Transport performs signed HTTP calls and classifies their outcome.
type Transport struct {
	Client  *http.Client
	Signer  signer.Signer
	BaseURL string
	Proxy   ProxySelector
}

// New creates a Transport with the given base URL, signer, and timeout.
func New(baseURL string, s signer.Signer, timeout time.Duration) *Transport {
	return &Transport{
		Client:  &http.Client{Timeout: timeout},
		Signer:  s,
		BaseURL: baseURL,
	}
}

// Do issues one signed HTTP call and classifies the outcome, with up to two
// attempts at transient network faults (connection failure, timeout,
// malformed JSON), each spaced by an exponential backoff delay
// (SPEC_FULL.md §D1). expectComments tells Do whether an empty `data` on a
// comment-listing endpoint should be classified as AuthExpired rather than
// a legitimate empty page (spec.md §4.1/§7).
func (t *Transport) Do(ctx context.Context, method, path string, body []byte, credentialToken string, expectComments bool) Result {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	var last Result
	_, _ = backoff.Retry(ctx, func() (struct{}, error) {
		last = t.doOnce(ctx, method, path, body, credentialToken, expectComments)
		if last.Outcome == TransportError || last.Outcome == ServerError {
			// Returning an error tells backoff.Retry to try again. Both
			// kinds get Transport's own small local retry (spec.md §7)
			// before bubbling up to the Retry Strategy.
			return struct{}{}, fmt.Errorf("transient error: %w", last.Err)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(2))

	return last
}

func (t *Transport) doOnce(ctx context.Context, method, path string, body []byte, credentialToken string, expectComments bool) Result {
	signed, err := t.Signer.Sign(ctx, path, body, credentialToken)
	if err != nil {
		return Result{Outcome: TransportError, Err: fmt.Errorf("signing request: %w", err)}
	}

	url := t.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(signed.SignedBody))
	if err != nil {
		return Result{Outcome: TransportError, Err: fmt.Errorf("building request: %w", err)}
	}
	for k, v := range signed.Headers {
		req.Header.Set(k, v)
	}
	if signed.Cookies != "" {
		req.Header.Set("Cookie", signed.Cookies)
	}

	client, err := t.clientForCall()
	if err != nil {
		return Result{Outcome: TransportError, Err: fmt.Errorf("selecting proxy: %w", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Outcome: TransportError, Err: fmt.Errorf("performing request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Outcome: TransportError, Err: fmt.Errorf("reading response body: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return Result{Outcome: ServerError, StatusCode: resp.StatusCode, Err: fmt.Errorf("server error: %s", resp.Status)}
	}

	var parsed Response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{Outcome: TransportError, StatusCode: resp.StatusCode, Err: fmt.Errorf("malformed JSON: %w", err)}
	}

	return Result{
		Outcome:    classify(parsed, expectComments),
		Response:   parsed,
		StatusCode: resp.StatusCode,
	}
}

// classify applies spec.md §4.1/§7's outcome rules to a parsed response.
func classify(r Response, expectComments bool) Outcome {
	if r.Code == RateLimitSentinel {
		return RateLimited
	}
	// Empty data on a comment request where comments were expected is the
	// observed expired-token signature, whatever the success flag says.
	if expectComments && isEmptyData(r.Data) {
		return AuthExpired
	}
	if r.Success {
		return OK
	}
	return Unknown
}

func isEmptyData(data json.RawMessage) bool {
	if len(data) == 0 {
		return true
	}
	trimmed := bytes.TrimSpace(data)
	return bytes.Equal(trimmed, []byte("{}")) ||
		bytes.Equal(trimmed, []byte("null")) ||
		bytes.Equal(trimmed, []byte("[]"))
}

// clientForCall returns t.Client unchanged when no ProxySelector is set, or
// a per-call client routed through the selected proxy otherwise. Proxies
// rotate per call (the whole point of a proxy pool), so this cannot be
// decided once at construction time.
func (t *Transport) clientForCall() (*http.Client, error) {
	if t.Proxy == nil {
		return t.Client, nil
	}
	raw := t.Proxy()
	if raw == "" {
		return t.Client, nil
	}
	proxyURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy URL %q: %w", raw, err)
	}
	return &http.Client{
		Timeout:   t.Client.Timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}, nil
}
