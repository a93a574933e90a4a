// Package coordinator implements the Job Coordinator of spec.md §4.7: the
// outer loop that turns a list of note descriptors into completed,
// persisted crawls, isolating any single note's failure from the rest of
// the batch.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hejianfang/xhs-crawl/pkg/credential"
	"github.com/hejianfang/xhs-crawl/pkg/inputlist"
	"github.com/hejianfang/xhs-crawl/pkg/progress"
	"github.com/hejianfang/xhs-crawl/pkg/retrypolicy"
	"github.com/hejianfang/xhs-crawl/pkg/transport"
	"github.com/hejianfang/xhs-crawl/pkg/walker"
	"github.com/hejianfang/xhs-crawl/pkg/xhsapi"
)

// ErrNoteInfoFailed is wrapped into the error returned when noteInfo's
// retry budgets are exhausted (spec.md §4.4's Fail action).
var ErrNoteInfoFailed = errors.New("coordinator: note info fetch failed")

// Notifier is the operational-alerting boundary the Coordinator posts
// failure/summary events through (SPEC_FULL.md §D8). A nil Notifier is a
// valid no-op; only internal/notify's concrete backends are ever wired.
type Notifier interface {
	NotifyNoteFailed(ctx context.Context, taskID, noteID, reason string)
	NotifyTaskSummary(ctx context.Context, taskID string, summary Summary)
}

// Metrics is the subset of telemetry counters the Coordinator touches,
// scoped as an interface so this package stays independent of the
// prometheus client (SPEC_FULL.md §D5).
type Metrics interface {
	ObserveNoteCompleted()
	ObserveNoteFailed()
	ObserveCommentsFetched(level string, n int)
}

// Summary is the task-wide result written to summary_all_notes.json
// (spec.md §4.7/§6).
type Summary struct {
	SuccessfulNotes []string `json:"successful_notes"`
	FailedNotes     []string `json:"failed_notes"`
	TotalComments   int      `json:"total_comments"`
}

// noteBasic is the normalized note metadata written to
// note_<id>_basic.json (spec.md §6).
type noteBasic struct {
	NoteID      string `json:"note_id"`
	Title       string `json:"title"`
	Body        string `json:"desc"`
	SignedToken string `json:"xsec_token"`
}

// noteFull is the union file written to note_<id>_full.json (spec.md §6),
// the json_to_full_data.py-derived supplemented feature.
type noteFull struct {
	noteBasic
	CommentCount int `json:"comment_count"`
}

// Coordinator drives the note list -> noteInfo -> walker -> sink ->
// progress update loop.
type Coordinator struct {
	Client       *xhsapi.Client
	Pool         *credential.Pool
	Progress     *progress.Manager
	WalkerConfig walker.Config
	NewWalker    func() *walker.Walker
	OutputDir    string
	Logger       *slog.Logger
	Notifier     Notifier
	Metrics      Metrics
	TaskID       string
}

// Run processes every pending note in notes, persisting as it goes, and
// returns the task-wide Summary. A single note's failure is recorded and
// never aborts the batch (spec.md §4.7).
func (c *Coordinator) Run(ctx context.Context, notes []inputlist.Descriptor) (Summary, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	allIDs := make([]string, 0, len(notes))
	byID := make(map[string]inputlist.Descriptor, len(notes))
	for _, d := range notes {
		id := noteIDOf(d)
		allIDs = append(allIDs, id)
		byID[id] = d
	}

	pending := c.Progress.PendingNotes(allIDs)

	var summary Summary
	for _, noteID := range pending {
		if err := ctx.Err(); err != nil {
			logger.Warn("coordinator cancelled mid-batch", "note_id", noteID, "error", err)
			break
		}

		d := byID[noteID]
		n, err := c.processNote(ctx, d)
		if err != nil {
			logger.Error("note failed", "note_id", noteID, "error", err)
			c.Progress.SetStatus(noteID, progress.StatusFailed, err.Error())
			if saveErr := c.Progress.Save(); saveErr != nil {
				logger.Error("persisting progress", "note_id", noteID, "error", saveErr)
			}
			summary.FailedNotes = append(summary.FailedNotes, noteID)
			if c.Metrics != nil {
				c.Metrics.ObserveNoteFailed()
			}
			if c.Notifier != nil {
				c.Notifier.NotifyNoteFailed(ctx, c.TaskID, noteID, err.Error())
			}
			continue
		}

		if saveErr := c.Progress.Save(); saveErr != nil {
			logger.Error("persisting progress", "note_id", noteID, "error", saveErr)
		}
		summary.SuccessfulNotes = append(summary.SuccessfulNotes, noteID)
		summary.TotalComments += n
		if c.Metrics != nil {
			c.Metrics.ObserveNoteCompleted()
			c.Metrics.ObserveCommentsFetched("all", n)
		}
	}

	if err := c.writeSummary(summary); err != nil {
		return summary, err
	}
	if c.Notifier != nil {
		c.Notifier.NotifyTaskSummary(ctx, c.TaskID, summary)
	}
	return summary, nil
}

// processNote drives one note through noteInfo, basic-JSON persistence,
// the walker, and the full-data union file.
func (c *Coordinator) processNote(ctx context.Context, d inputlist.Descriptor) (int, error) {
	noteID := noteIDOf(d)
	c.Progress.SetStatus(noteID, progress.StatusProcessing, "")

	info, err := c.fetchNoteInfo(ctx, d.NoteURL)
	if err != nil {
		return 0, err
	}
	c.Progress.SetExpectedComments(noteID, info.ExpectedComments)

	if err := c.writeBasic(info); err != nil {
		return 0, err
	}
	c.Progress.SetBasicInfoSaved(noteID)

	sinkPath := filepath.Join(c.OutputDir, fmt.Sprintf("note_%s_comments.jsonl", noteID))
	sink, err := OpenJSONLSink(sinkPath)
	if err != nil {
		return 0, err
	}
	defer sink.Close()

	w := c.NewWalker()
	n, walkErr := w.Walk(ctx, noteID, info.SignedToken, sink)
	if walkErr != nil {
		// Partial results already reached disk via the sink; the walker
		// preserved last_cursor so a later run resumes from here.
		return n, fmt.Errorf("walking comment tree: %w", walkErr)
	}

	if err := c.writeFull(info); err != nil {
		return n, err
	}
	c.Progress.SetStatus(noteID, progress.StatusCompleted, "")
	return n, nil
}

// fetchNoteInfo drives noteInfo through credential acquisition and the
// Retry Strategy (spec.md §4.4), the same rotate/wait/backoff loop
// pkg/walker's fetchPage runs for comment pages, since the original
// get_with_cookie_pool_retry wraps get_note_full_info identically to how
// it wraps comment-page fetches.
func (c *Coordinator) fetchNoteInfo(ctx context.Context, noteURL string) (xhsapi.NoteInfoResponse, error) {
	state := retrypolicy.NewState()
	var cred *credential.Credential

	for {
		if err := ctx.Err(); err != nil {
			return xhsapi.NoteInfoResponse{}, fmt.Errorf("cancelled: %w", err)
		}

		if cred == nil {
			acquired, err := c.Pool.Acquire(ctx)
			if err != nil {
				return xhsapi.NoteInfoResponse{}, fmt.Errorf("%w: acquiring credential: %v", ErrNoteInfoFailed, err)
			}
			cred = acquired
		}

		info, res := c.Client.NoteInfo(ctx, noteURL, cred.Token)
		if res.Outcome == transport.OK {
			_ = c.Pool.ReportSuccess(ctx, cred.Fingerprint, 0)
			return info, nil
		}

		_, _ = c.Pool.ReportFailure(ctx, cred.Fingerprint, res.Outcome.String())
		action := state.Decide(res.Outcome, c.Pool.Size(), c.WalkerConfig.RetryBudgets)

		switch action.Kind {
		case retrypolicy.RotateCredential:
			state.NoteCredentialTried()
			cred = nil
		case retrypolicy.WaitAndRetry:
			if err := sleepCtx(ctx, action.Duration); err != nil {
				return xhsapi.NoteInfoResponse{}, err
			}
			cred = nil
		case retrypolicy.ShortBackoffRetry:
			if err := sleepCtx(ctx, action.Duration); err != nil {
				return xhsapi.NoteInfoResponse{}, err
			}
		case retrypolicy.Fail:
			return xhsapi.NoteInfoResponse{}, fmt.Errorf("%w: %s", ErrNoteInfoFailed, action.Reason)
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

func (c *Coordinator) writeBasic(info xhsapi.NoteInfoResponse) error {
	data, err := json.MarshalIndent(noteBasic{
		NoteID:      info.NoteID,
		Title:       info.Title,
		Body:        info.Body,
		SignedToken: info.SignedToken,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling basic info: %w", err)
	}
	path := filepath.Join(c.OutputDir, fmt.Sprintf("note_%s_basic.json", info.NoteID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing basic info: %w", err)
	}
	return nil
}

func (c *Coordinator) writeFull(info xhsapi.NoteInfoResponse) error {
	data, err := json.MarshalIndent(noteFull{
		noteBasic: noteBasic{
			NoteID:      info.NoteID,
			Title:       info.Title,
			Body:        info.Body,
			SignedToken: info.SignedToken,
		},
		CommentCount: info.ExpectedComments,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling full data: %w", err)
	}
	path := filepath.Join(c.OutputDir, fmt.Sprintf("note_%s_full.json", info.NoteID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing full data: %w", err)
	}
	return nil
}

func (c *Coordinator) writeSummary(summary Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	path := filepath.Join(c.OutputDir, "summary_all_notes.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

func noteIDOf(d inputlist.Descriptor) string {
	if d.NoteID != "" {
		return d.NoteID
	}
	return d.NoteURL
}
