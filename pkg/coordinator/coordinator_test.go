package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejianfang/xhs-crawl/pkg/credential"
	"github.com/hejianfang/xhs-crawl/pkg/inputlist"
	"github.com/hejianfang/xhs-crawl/pkg/progress"
	"github.com/hejianfang/xhs-crawl/pkg/retrypolicy"
	"github.com/hejianfang/xhs-crawl/pkg/signer"
	"github.com/hejianfang/xhs-crawl/pkg/transport"
	"github.com/hejianfang/xhs-crawl/pkg/walker"
	"github.com/hejianfang/xhs-crawl/pkg/xhsapi"
)

// fastBudgets never sleeps: MaxWaitRounds 0 means RateLimited/AuthExpired
// exhausts straight to Fail once every known credential has been tried,
// with no CooldownWait round in between.
func fastBudgets() retrypolicy.Budgets {
	return retrypolicy.Budgets{MaxPerCredentialAttempts: 1, MaxWaitRounds: 0, CooldownWait: time.Millisecond}
}

func buildCoordinator(t *testing.T, handler http.HandlerFunc) (*Coordinator, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tr := transport.New(srv.URL, signer.Passthrough{}, time.Second)
	client := xhsapi.New(tr)
	pool := credential.New(credential.StrategyRoundRobin, credential.DefaultThresholds(), nil)
	_, err := pool.Add(context.Background(), "cookie-a", "cred_A")
	require.NoError(t, err)

	dir := t.TempDir()
	prog := progress.New(filepath.Join(dir, "progress.json"), dir, "task1", "input.json", 1)

	cfg := walker.Config{MaxLevel: 10, TopPageDelay: time.Millisecond, SubPageDelay: time.Millisecond, RetryBudgets: fastBudgets()}
	c := &Coordinator{
		Client:       client,
		Pool:         pool,
		Progress:     prog,
		WalkerConfig: cfg,
		NewWalker: func() *walker.Walker {
			return walker.New(client, pool, prog, cfg)
		},
		OutputDir: dir,
		TaskID:    "task1",
	}
	return c, dir
}

func TestRun_SingleNote_WritesBasicFullAndSummary(t *testing.T) {
	var calls int
	c, dir := buildCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch calls {
		case 1:
			fmt.Fprint(w, `{"success":true,"code":0,"data":{"note_id":"n1","title":"T","xsec_token":"tok","comment_count":1}}`)
		case 2:
			fmt.Fprint(w, `{"success":true,"code":0,"data":{"comments":[{"comment_id":"c1","note_id":"n1","content":"hi"}],"has_more":false}}`)
		default:
			t.Fatalf("unexpected call %d", calls)
		}
	})

	notes := []inputlist.Descriptor{{NoteID: "n1", NoteURL: "https://example/explore/n1?xsec_token=tok"}}
	summary, err := c.Run(context.Background(), notes)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, summary.SuccessfulNotes)
	assert.Equal(t, 1, summary.TotalComments)

	basicPath := filepath.Join(dir, "note_n1_basic.json")
	assert.FileExists(t, basicPath)
	fullPath := filepath.Join(dir, "note_n1_full.json")
	assert.FileExists(t, fullPath)
	summaryPath := filepath.Join(dir, "summary_all_notes.json")
	raw, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	var got Summary
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 1, got.TotalComments)

	snap := c.Progress.Snapshot()
	assert.Equal(t, progress.StatusCompleted, snap.NotesProgress["n1"].Status)
}

func TestRun_OneNoteFailsDoesNotAbortBatch(t *testing.T) {
	// "bad" hits the rate-limit sentinel on every attempt. buildCoordinator's
	// pool holds a single credential and fastBudgets sets MaxWaitRounds 0, so
	// fetchNoteInfo rotates once (no other credential to land on) and then
	// fails once the wait-round budget is also exhausted: two calls, not a
	// bare one-shot attempt.
	var badCalls int
	c, _ := buildCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["url"] == "https://example/explore/bad" {
			badCalls++
			fmt.Fprintf(w, `{"success":false,"code":%d,"msg":"rate limited"}`, transport.RateLimitSentinel)
			return
		}
		if _, ok := body["url"]; ok {
			fmt.Fprint(w, `{"success":true,"code":0,"data":{"note_id":"good","xsec_token":"tok"}}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"code":0,"data":{"comments":[],"has_more":false}}`)
	})

	notes := []inputlist.Descriptor{
		{NoteID: "bad", NoteURL: "https://example/explore/bad"},
		{NoteID: "good", NoteURL: "https://example/explore/good"},
	}
	summary, err := c.Run(context.Background(), notes)
	require.NoError(t, err)
	assert.Contains(t, summary.FailedNotes, "bad")
	assert.Contains(t, summary.SuccessfulNotes, "good")
	assert.Equal(t, 2, badCalls)
}

// TestRun_NoteInfoRateLimitRotatesAcrossCredentialsThenSucceeds mirrors
// pkg/walker's identically named coverage for comment pages: noteInfo's
// retry loop must rotate across the pool and recover, not fail on the
// first rate-limited credential.
func TestRun_NoteInfoRateLimitRotatesAcrossCredentialsThenSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["url"]; ok {
			if r.Header.Get("Cookie") == "cookie-a" {
				fmt.Fprintf(w, `{"success":false,"code":%d,"msg":"rate limited"}`, transport.RateLimitSentinel)
				return
			}
			fmt.Fprint(w, `{"success":true,"code":0,"data":{"note_id":"n1","xsec_token":"tok"}}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"code":0,"data":{"comments":[],"has_more":false}}`)
	}))
	defer srv.Close()

	tr := transport.New(srv.URL, signer.Passthrough{}, time.Second)
	client := xhsapi.New(tr)
	pool := credential.New(credential.StrategyRoundRobin, credential.DefaultThresholds(), nil)
	credA, err := pool.Add(context.Background(), "cookie-a", "cred_A")
	require.NoError(t, err)
	// Round-robin orders by fingerprint; cookie-c's sorts after cookie-a's,
	// so cred_A is tried first.
	credB, err := pool.Add(context.Background(), "cookie-c", "cred_B")
	require.NoError(t, err)

	dir := t.TempDir()
	prog := progress.New(filepath.Join(dir, "progress.json"), dir, "task1", "input.json", 1)
	cfg := walker.Config{MaxLevel: 10, TopPageDelay: time.Millisecond, SubPageDelay: time.Millisecond, RetryBudgets: fastBudgets()}
	c := &Coordinator{
		Client:       client,
		Pool:         pool,
		Progress:     prog,
		WalkerConfig: cfg,
		NewWalker: func() *walker.Walker {
			return walker.New(client, pool, prog, cfg)
		},
		OutputDir: dir,
		TaskID:    "task1",
	}

	notes := []inputlist.Descriptor{{NoteID: "n1", NoteURL: "https://example/explore/n1?xsec_token=tok"}}
	summary, err := c.Run(context.Background(), notes)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, summary.SuccessfulNotes)

	// cred_A's later comment-page success decrements ConsecutiveErrors, so
	// its one rate-limited noteInfo attempt shows in the Fail counter.
	gotA, _ := pool.Get(credA.Fingerprint)
	assert.Equal(t, 1, gotA.Counters.Fail)
	gotB, _ := pool.Get(credB.Fingerprint)
	assert.Equal(t, 1, gotB.Counters.Success)
}
