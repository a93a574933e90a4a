package progressdb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hejianfang/xhs-crawl/pkg/progress"
)

func TestTaskStatus(t *testing.T) {
	t.Run("completed when every note is done", func(t *testing.T) {
		task := progress.TaskProgress{
			TotalNotes: 2,
			Statistics: progress.Statistics{Completed: 2},
		}
		assert.Equal(t, "completed", taskStatus(task))
	})

	t.Run("processing when any note is resuming", func(t *testing.T) {
		task := progress.TaskProgress{
			TotalNotes: 2,
			Statistics: progress.Statistics{Completed: 1, Processing: 1},
		}
		assert.Equal(t, "processing", taskStatus(task))
	})

	t.Run("running otherwise", func(t *testing.T) {
		task := progress.TaskProgress{
			TotalNotes: 2,
			Statistics: progress.Statistics{},
		}
		assert.Equal(t, "running", taskStatus(task))
	})

	t.Run("zero notes never reports completed", func(t *testing.T) {
		task := progress.TaskProgress{TotalNotes: 0}
		assert.Equal(t, "running", taskStatus(task))
	})
}
