package progress

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingNotes_FiltersCompleted(t *testing.T) {
	dir := t.TempDir()
	m := New(filepath.Join(dir, "progress.json"), dir, "task1", "input.json", 3)
	m.SetStatus("n1", StatusCompleted, "")
	m.SetStatus("n2", StatusFailed, "boom")

	pending := m.PendingNotes([]string{"n1", "n2", "n3"})
	assert.ElementsMatch(t, []string{"n2", "n3"}, pending)
}

func TestAdvanceCursor_MonotonicFetched(t *testing.T) {
	dir := t.TempDir()
	m := New(filepath.Join(dir, "progress.json"), dir, "task1", "input.json", 1)

	m.AdvanceCursor("n1", 5, "cursor-a")
	m.AdvanceCursor("n1", 3, "cursor-b")

	snap := m.Snapshot()
	np := snap.NotesProgress["n1"]
	assert.Equal(t, 8, np.Comments.Fetched)
	assert.Equal(t, "cursor-b", np.Comments.LastCursor)
	assert.Equal(t, 2, np.Comments.CurrentPage)
}

func TestRecordError_RingBufferBoundedAtTen(t *testing.T) {
	dir := t.TempDir()
	m := New(filepath.Join(dir, "progress.json"), dir, "task1", "input.json", 1)

	for i := 0; i < 15; i++ {
		m.RecordError("n1", "err")
	}
	snap := m.Snapshot()
	assert.Len(t, snap.NotesProgress["n1"].Comments.Errors, ringBufferLimit)
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.json")
	m := New(path, dir, "task1", "input.json", 2)
	m.SetStatus("n1", StatusCompleted, "")
	m.AdvanceCursor("n2", 2, "cursor-x")
	require.NoError(t, m.Save())

	loaded, err := Load(path, dir)
	require.NoError(t, err)
	snap := loaded.Snapshot()
	assert.Equal(t, StatusCompleted, snap.NotesProgress["n1"].Status)
	assert.Equal(t, "cursor-x", snap.NotesProgress["n2"].Comments.LastCursor)
	assert.Equal(t, 1, snap.Statistics.Completed)
}

func TestLoad_SelfHealsOvereagerCompletion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.json")
	m := New(path, dir, "task1", "input.json", 1)
	m.AdvanceCursor("n1", 2, "") // fetched=2
	m.task.NotesProgress["n1"].Comments.Expected = 5 // expected > fetched, simulating an over-eager completion
	m.SetStatus("n1", StatusCompleted, "")
	require.NoError(t, m.Save())

	loaded, err := Load(path, dir)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, loaded.Snapshot().NotesProgress["n1"].Status)
}

func TestIsCompleted_FallsBackToArtifactFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.json")
	m := New(path, dir, "task1", "input.json", 1)

	require.False(t, m.IsCompleted("n1"))

	require.NoError(t, writeFileAtomic(filepath.Join(dir, "note_n1_full.json"), []byte(`{}`)))
	assert.True(t, m.IsCompleted("n1"))

	snap := m.Snapshot()
	assert.Equal(t, StatusCompleted, snap.NotesProgress["n1"].Status)
}
