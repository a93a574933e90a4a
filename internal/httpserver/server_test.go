package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejianfang/xhs-crawl/internal/telemetry"
	"github.com/hejianfang/xhs-crawl/pkg/progress"
)

type fakeTasks struct {
	snap progress.TaskProgress
}

func (f fakeTasks) Snapshot() progress.TaskProgress { return f.snap }

func TestHandleHealthz(t *testing.T) {
	s := NewServer(telemetry.NewLogger("text", "info"), fakeTasks{}, nil, []string{"*"})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleTask_Found(t *testing.T) {
	tasks := fakeTasks{snap: progress.TaskProgress{TaskID: "task1", TotalNotes: 3}}
	s := NewServer(telemetry.NewLogger("text", "info"), tasks, nil, []string{"*"})
	req := httptest.NewRequest(http.MethodGet, "/tasks/task1", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got progress.TaskProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.TotalNotes)
}

func TestHandleTask_NotFound(t *testing.T) {
	tasks := fakeTasks{snap: progress.TaskProgress{TaskID: "task1"}}
	s := NewServer(telemetry.NewLogger("text", "info"), tasks, nil, []string{"*"})
	req := httptest.NewRequest(http.MethodGet, "/tasks/other", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
