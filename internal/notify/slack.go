// Package notify posts run and upload summaries to a Slack channel.
package notify

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"evidencebot/internal/domain"
	"evidencebot/internal/upload"
)

// Notifier posts to one channel. A nil *Notifier is valid and does nothing.
type Notifier struct {
	api       *slack.Client
	channelID string
	logger    *zap.Logger
}

func New(api *slack.Client, channelID string, logger *zap.Logger) *Notifier {
	if api == nil || channelID == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{api: api, channelID: channelID, logger: logger}
}

func (n *Notifier) post(text string) {
	if n == nil {
		return
	}
	if _, _, err := n.api.PostMessage(n.channelID, slack.MsgOptionText(text, false)); err != nil {
		n.logger.Warn("slack post failed", zap.String("channel", n.channelID), zap.Error(err))
	}
}

func (n *Notifier) RunFinished(run domain.RunResult) {
	n.post(FormatRun(run))
}

func (n *Notifier) UploadFinished(s upload.Summary) {
	n.post("Evidence upload: " + upload.FormatSummary(s))
}

// FormatRun renders a run summary for chat.
func FormatRun(run domain.RunResult) string {
	if run.NoEntries {
		return fmt.Sprintf("Report %s: no test entries found.", run.Source)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Report %s processed: %d passed, %d failed", run.Source, run.Stats.Passed, run.Stats.Failed)
	if run.Stats.Errors > 0 {
		fmt.Fprintf(&sb, ", %d errors", run.Stats.Errors)
	}
	sb.WriteString(".")
	var failed []string
	for _, rec := range run.Records {
		if !rec.Passed() {
			failed = append(failed, rec.TicketKey)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&sb, "\nFailed: %s", strings.Join(failed, ", "))
	}
	return sb.String()
}
