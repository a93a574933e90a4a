// Package walker implements the Comment Tree Walker of spec.md §4.5: the
// algorithmic heart of the engine. It paginates top-level comments, expands
// each into its sub-comment tree depth-first, and emits every comment to a
// Sink with level and parent_id annotations the walker itself assigns.
//
// The tree is not materialized: each page's comment records are emitted as
// they arrive and expanded by recursion over the returned slices, bounded by
// Config.MaxLevel; no arena or comment_id-indexed store of the tree is kept.
// A parent's embedded `sub_comments` is used in place of a sub-page fetch
// when it already holds at least expected_sub_count entries.
package walker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/hejianfang/xhs-crawl/pkg/credential"
	"github.com/hejianfang/xhs-crawl/pkg/progress"
	"github.com/hejianfang/xhs-crawl/pkg/retrypolicy"
	"github.com/hejianfang/xhs-crawl/pkg/transport"
	"github.com/hejianfang/xhs-crawl/pkg/xhsapi"
)

// ErrPageFailed is wrapped into the error returned when a page's retry
// budgets are exhausted (spec.md §4.5.3's Fail action).
var ErrPageFailed = errors.New("walker: page fetch failed")

// EmittedComment is one comment as it reaches the Sink, carrying the
// level/parent_id the wire never sends (spec.md §3).
type EmittedComment struct {
	CommentID string
	ParentID  string
	NoteID    string
	Level     int
	Body      string
	Author    xhsapi.Author
	Timestamp int64
}

// Sink receives every comment the walker produces. Implementations MUST
// tolerate duplicate comment_ids (spec.md §4.5.4): dedup is the sink's job.
type Sink interface {
	Emit(EmittedComment) error
}

// Config bundles the walker's tunables (spec.md §4.5.2/§4.5.3).
type Config struct {
	MaxLevel     int
	TopPageDelay time.Duration
	SubPageDelay time.Duration
	RetryBudgets retrypolicy.Budgets
}

// DefaultConfig matches spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxLevel:     10,
		TopPageDelay: 500 * time.Millisecond,
		SubPageDelay: 3 * time.Second,
		RetryBudgets: retrypolicy.DefaultBudgets(),
	}
}

// Walker drives one note's comment tree to completion.
type Walker struct {
	Client   *xhsapi.Client
	Pool     *credential.Pool
	Progress *progress.Manager
	Config   Config

	topLimiter *rate.Limiter
	subLimiter *rate.Limiter
}

// New builds a Walker. limiters pace successive page requests
// (SPEC_FULL.md §D2) rather than gate concurrency, since the default
// scheduling model walks one note at a time.
func New(client *xhsapi.Client, pool *credential.Pool, prog *progress.Manager, cfg Config) *Walker {
	return &Walker{
		Client:     client,
		Pool:       pool,
		Progress:   prog,
		Config:     cfg,
		topLimiter: rate.NewLimiter(rate.Every(cfg.TopPageDelay), 1),
		subLimiter: rate.NewLimiter(rate.Every(cfg.SubPageDelay), 1),
	}
}

// pageFetcher is the shape both topCommentsPage and subCommentsPage share
// once bound to their fixed arguments, so fetchPage can retry either
// uniformly.
type pageFetcher func(credentialToken string) (xhsapi.CommentPageResponse, transport.Result)

// Walk produces every comment of noteID to sink, resuming from
// progress.comments.last_cursor if present (spec.md §4.5.1). It returns the
// count of comments emitted and a non-nil error only on a hard Fail; a
// partial count with error is a valid and expected outcome (the walker
// never discards what it already emitted).
func (w *Walker) Walk(ctx context.Context, noteID, signedToken string, sink Sink) (int, error) {
	np := w.Progress.EnsureNote(noteID, "")
	cursor := np.Comments.LastCursor
	emitted := 0

	for {
		if err := ctx.Err(); err != nil {
			w.Progress.RecordWarning(noteID, "cancelled: "+err.Error())
			return emitted, fmt.Errorf("walker cancelled: %w", err)
		}

		if err := w.topLimiter.Wait(ctx); err != nil {
			return emitted, fmt.Errorf("walker cancelled during pacing: %w", err)
		}

		thisCursor := cursor
		page, err := w.fetchPage(ctx, noteID, func(credToken string) (xhsapi.CommentPageResponse, transport.Result) {
			return w.Client.TopCommentsPage(ctx, noteID, thisCursor, signedToken, credToken)
		})
		if err != nil {
			w.Progress.RecordWarning(noteID, err.Error())
			return emitted, err
		}

		for _, c := range page.Comments {
			n, emitErr := w.emitAndExpand(ctx, c, noteID, signedToken, 1, "", sink)
			emitted += n
			if emitErr != nil {
				w.Progress.RecordWarning(noteID, emitErr.Error())
				return emitted, emitErr
			}
		}

		// Persist the cursor for the NEXT unread page before moving on
		// (spec.md §4.5.1/P2): a crash after this point resumes cleanly.
		cursor = page.Cursor
		w.Progress.AdvanceCursor(noteID, len(page.Comments), cursor)
		if err := w.Progress.Save(); err != nil {
			return emitted, fmt.Errorf("persisting progress: %w", err)
		}

		if !page.HasMore {
			return emitted, nil
		}
	}
}

// emitAndExpand emits one comment then, depth-first, fully expands its
// sub-tree before returning — the contiguous-thread guarantee of §4.5.2.
func (w *Walker) emitAndExpand(ctx context.Context, c xhsapi.CommentRecord, noteID, signedToken string, level int, parentID string, sink Sink) (int, error) {
	count := 1
	if err := sink.Emit(EmittedComment{
		CommentID: c.CommentID,
		ParentID:  parentID,
		NoteID:    noteID,
		Level:     level,
		Body:      c.Body,
		Author:    c.Author,
		Timestamp: c.Timestamp,
	}); err != nil {
		return count, fmt.Errorf("emitting comment %s: %w", c.CommentID, err)
	}

	if c.ExpectedSubCount <= 0 || level >= w.Config.MaxLevel {
		return count, nil
	}

	subs, err := w.expandSubTree(ctx, c, noteID, signedToken, level)
	if err != nil {
		return count, err
	}

	for _, sub := range subs {
		n, err := w.emitAndExpand(ctx, sub, noteID, signedToken, level+1, c.CommentID, sink)
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

// expandSubTree returns the full set of a parent's direct sub-comments,
// skipping the wire fetch when the inline hint already covers
// expected_sub_count (spec.md §4.5.2).
func (w *Walker) expandSubTree(ctx context.Context, parent xhsapi.CommentRecord, noteID, signedToken string, parentLevel int) ([]xhsapi.CommentRecord, error) {
	if len(parent.SubComments) >= parent.ExpectedSubCount {
		return parent.SubComments, nil
	}

	var all []xhsapi.CommentRecord
	cursor := parent.OwnSubCursor
	for {
		if err := w.subLimiter.Wait(ctx); err != nil {
			return all, fmt.Errorf("walker cancelled during sub-page pacing: %w", err)
		}

		thisCursor := cursor
		page, err := w.fetchPage(ctx, noteID, func(credToken string) (xhsapi.CommentPageResponse, transport.Result) {
			return w.Client.SubCommentsPage(ctx, parent.CommentID, noteID, thisCursor, signedToken, credToken)
		})
		if err != nil {
			return all, err
		}
		all = append(all, page.Comments...)
		cursor = page.Cursor
		if !page.HasMore {
			break
		}
	}
	return all, nil
}

// fetchPage drives one page fetch through credential acquisition and the
// Retry Strategy (spec.md §4.5.3), looping until Succeed or Fail.
func (w *Walker) fetchPage(ctx context.Context, noteID string, fetch pageFetcher) (xhsapi.CommentPageResponse, error) {
	state := retrypolicy.NewState()
	var cred *credential.Credential

	for {
		if err := ctx.Err(); err != nil {
			return xhsapi.CommentPageResponse{}, fmt.Errorf("cancelled: %w", err)
		}

		if cred == nil {
			c, err := w.Pool.Acquire(ctx)
			if err != nil {
				return xhsapi.CommentPageResponse{}, fmt.Errorf("%w: acquiring credential: %v", ErrPageFailed, err)
			}
			cred = c
		}

		page, res := fetch(cred.Token)
		if res.Outcome == transport.OK {
			_ = w.Pool.ReportSuccess(ctx, cred.Fingerprint, len(page.Comments))
			return page, nil
		}

		_, _ = w.Pool.ReportFailure(ctx, cred.Fingerprint, res.Outcome.String())
		action := state.Decide(res.Outcome, w.Pool.Size(), w.Config.RetryBudgets)

		switch action.Kind {
		case retrypolicy.RotateCredential:
			state.NoteCredentialTried()
			cred = nil
		case retrypolicy.WaitAndRetry:
			if err := sleepCtx(ctx, action.Duration); err != nil {
				return xhsapi.CommentPageResponse{}, err
			}
			cred = nil
		case retrypolicy.ShortBackoffRetry:
			if err := sleepCtx(ctx, action.Duration); err != nil {
				return xhsapi.CommentPageResponse{}, err
			}
			// Same credential is retried first; fetchPage's next loop
			// re-acquires from the pool if it has since gone ineligible.
		case retrypolicy.Fail:
			return xhsapi.CommentPageResponse{}, fmt.Errorf("%w: %s", ErrPageFailed, action.Reason)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
