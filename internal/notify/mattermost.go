package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hejianfang/xhs-crawl/pkg/coordinator"
)

// MattermostNotifier posts failure/summary notices via the Mattermost REST
// API v4, adapted from the teacher's pkg/mattermost.Client shape.
type MattermostNotifier struct {
	baseURL    string
	botToken   string
	channelID  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewMattermostNotifier builds a MattermostNotifier. An empty baseURL or
// botToken disables it.
func NewMattermostNotifier(baseURL, botToken, channelID string, logger *slog.Logger) *MattermostNotifier {
	return &MattermostNotifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		botToken:   botToken,
		channelID:  channelID,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// IsEnabled reports whether this notifier will actually post anything.
func (n *MattermostNotifier) IsEnabled() bool {
	return n.baseURL != "" && n.botToken != "" && n.channelID != ""
}

type mattermostPost struct {
	ChannelID string `json:"channel_id"`
	Message   string `json:"message"`
}

func (n *MattermostNotifier) post(ctx context.Context, message string) error {
	body, err := json.Marshal(mattermostPost{ChannelID: n.channelID, Message: message})
	if err != nil {
		return fmt.Errorf("marshaling mattermost post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/api/v4/posts", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building mattermost request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.botToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting to mattermost: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mattermost returned %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// NotifyNoteFailed implements coordinator.Notifier.
func (n *MattermostNotifier) NotifyNoteFailed(ctx context.Context, taskID, noteID, reason string) {
	if !n.IsEnabled() {
		n.logger.Debug("mattermost notifier disabled, skipping note-failed notice", "task_id", taskID, "note_id", noteID)
		return
	}
	msg := fmt.Sprintf("task `%s` note `%s` failed: %s", taskID, noteID, reason)
	if err := n.post(ctx, msg); err != nil {
		n.logger.Error("posting note-failed notice to mattermost", "error", err)
	}
}

// NotifyTaskSummary implements coordinator.Notifier.
func (n *MattermostNotifier) NotifyTaskSummary(ctx context.Context, taskID string, summary coordinator.Summary) {
	if !n.IsEnabled() {
		n.logger.Debug("mattermost notifier disabled, skipping task summary notice", "task_id", taskID)
		return
	}
	msg := fmt.Sprintf("task `%s` finished: %d succeeded, %d failed, %d comments",
		taskID, len(summary.SuccessfulNotes), len(summary.FailedNotes), summary.TotalComments)
	if err := n.post(ctx, msg); err != nil {
		n.logger.Error("posting task summary notice to mattermost", "error", err)
	}
}

// Fanout dispatches to every non-nil, enabled Notifier it wraps, letting
// Slack and Mattermost both be configured at once.
type Fanout struct {
	Notifiers []coordinator.Notifier
}

// NotifyNoteFailed implements coordinator.Notifier.
func (f Fanout) NotifyNoteFailed(ctx context.Context, taskID, noteID, reason string) {
	for _, n := range f.Notifiers {
		if n != nil {
			n.NotifyNoteFailed(ctx, taskID, noteID, reason)
		}
	}
}

// NotifyTaskSummary implements coordinator.Notifier.
func (f Fanout) NotifyTaskSummary(ctx context.Context, taskID string, summary coordinator.Summary) {
	for _, n := range f.Notifiers {
		if n != nil {
			n.NotifyTaskSummary(ctx, taskID, summary)
		}
	}
}
