// Package progressdb is the optional Postgres mirror of progress.Manager
// state (SPEC_FULL.md §D6): a read replica for dashboards/alerting that
// never gates the crawl itself. internal/app attaches a Store only when
// DATABASE_URL is set; every method needs a non-nil Store with a pool.
package progressdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hejianfang/xhs-crawl/pkg/progress"
)

// Store mirrors TaskProgress into crawl_tasks/crawl_notes. Every method is a
// best-effort upsert; callers log failures and keep running off the local
// JSON file, which remains the source of truth.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-connected pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertTask mirrors the task-level row.
func (s *Store) UpsertTask(ctx context.Context, task progress.TaskProgress) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO crawl_tasks (task_id, source_ref, total_notes, status, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (task_id) DO UPDATE SET
			source_ref  = EXCLUDED.source_ref,
			total_notes = EXCLUDED.total_notes,
			status      = EXCLUDED.status,
			updated_at  = now()
	`, task.TaskID, task.SourceReference, task.TotalNotes, taskStatus(task))
	if err != nil {
		return fmt.Errorf("upserting crawl task: %w", err)
	}
	return nil
}

// UpsertNote mirrors a single note's progress row.
func (s *Store) UpsertNote(ctx context.Context, taskID string, np *progress.NoteProgress) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO crawl_notes (
			task_id, note_id, status, comments_fetched, comments_expected,
			last_cursor, last_error, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (task_id, note_id) DO UPDATE SET
			status            = EXCLUDED.status,
			comments_fetched  = EXCLUDED.comments_fetched,
			comments_expected = EXCLUDED.comments_expected,
			last_cursor       = EXCLUDED.last_cursor,
			last_error        = EXCLUDED.last_error,
			updated_at        = now()
	`, taskID, np.NoteID, string(np.Status), np.Comments.Fetched, np.Comments.Expected,
		np.Comments.LastCursor, np.ErrorMessage)
	if err != nil {
		return fmt.Errorf("upserting crawl note %s: %w", np.NoteID, err)
	}
	return nil
}

// Sync mirrors the full TaskProgress snapshot in one call, used after every
// progress.Manager.Save() when the mirror is enabled.
func (s *Store) Sync(ctx context.Context, task progress.TaskProgress) error {
	if err := s.UpsertTask(ctx, task); err != nil {
		return err
	}
	for _, np := range task.NotesProgress {
		if err := s.UpsertNote(ctx, task.TaskID, np); err != nil {
			return err
		}
	}
	return nil
}

func taskStatus(task progress.TaskProgress) string {
	if task.Statistics.Completed == task.TotalNotes && task.TotalNotes > 0 {
		return "completed"
	}
	if task.Statistics.Processing > 0 {
		return "processing"
	}
	return "running"
}
