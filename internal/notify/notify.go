// Package notify implements the optional failure-notification boundary of
// SPEC_FULL.md §D8, adapted from the teacher's pkg/slack/pkg/mattermost
// notifier shape (IsEnabled()+noop-when-unconfigured) but scoped to the
// coordinator.Notifier interface instead of incident alerting.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/hejianfang/xhs-crawl/pkg/coordinator"
)

// SlackNotifier posts failure/summary notices to one Slack channel. A
// SlackNotifier with no bot token is a valid, inert no-op.
type SlackNotifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlackNotifier builds a SlackNotifier. botToken == "" disables it.
func NewSlackNotifier(botToken, channel string, logger *slog.Logger) *SlackNotifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &SlackNotifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether this notifier will actually post anything.
func (n *SlackNotifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyNoteFailed implements coordinator.Notifier.
func (n *SlackNotifier) NotifyNoteFailed(ctx context.Context, taskID, noteID, reason string) {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping note-failed notice", "task_id", taskID, "note_id", noteID)
		return
	}
	text := fmt.Sprintf(":x: task `%s` note `%s` failed: %s", taskID, noteID, reason)
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Error("posting note-failed notice to slack", "error", err)
	}
}

// NotifyTaskSummary implements coordinator.Notifier.
func (n *SlackNotifier) NotifyTaskSummary(ctx context.Context, taskID string, summary coordinator.Summary) {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping task summary notice", "task_id", taskID)
		return
	}
	text := fmt.Sprintf(":checkered_flag: task `%s` finished: %d succeeded, %d failed, %d comments",
		taskID, len(summary.SuccessfulNotes), len(summary.FailedNotes), summary.TotalComments)
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Error("posting task summary notice to slack", "error", err)
	}
}
