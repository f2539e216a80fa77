// Package notify delivers post-commit batch summaries to chat and webhook
// collaborators. Delivery is fire-and-forget: failures are logged and never
// surfaced to the write path that triggered them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/civistat/civistat/internal/model"
)

// Config holds notification targets. Empty values disable the target.
type Config struct {
	SlackToken   string `yaml:"slack_token" mapstructure:"slack_token"`
	SlackChannel string `yaml:"slack_channel" mapstructure:"slack_channel"`
	WebhookURL   string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

const slackPostMessageURL = "https://slack.com/api/chat.postMessage"

// Notifier fans a committed batch summary out to all configured targets.
type Notifier struct {
	cfg      Config
	client   *http.Client
	limiter  *rate.Limiter
	slackURL string
}

func New(cfg Config) *Notifier {
	return &Notifier{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		slackURL: slackPostMessageURL,
		// Slack allows roughly one chat message per second per channel.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// BatchCommitted sends the batch summary to every configured target
// concurrently. The batch is already durable; nothing here can fail it.
func (n *Notifier) BatchCommitted(ctx context.Context, batch *model.Batch, diff *model.EditDiff) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	if n.cfg.SlackToken != "" && n.cfg.SlackChannel != "" {
		g.Go(func() error {
			if err := n.sendSlack(ctx, batch, diff); err != nil {
				zap.L().Error("notify: slack delivery failed",
					zap.Int64("batch_id", batch.ID), zap.Error(err))
			}
			return nil
		})
	}
	if n.cfg.WebhookURL != "" {
		g.Go(func() error {
			if err := n.pingWebhook(ctx); err != nil {
				zap.L().Error("notify: webhook ping failed",
					zap.Int64("batch_id", batch.ID), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck
}

// sendSlack posts the batch summary to the configured channel.
func (n *Notifier) sendSlack(ctx context.Context, batch *model.Batch, diff *model.EditDiff) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "notify: slack rate limit")
	}

	payload, err := json.Marshal(map[string]string{
		"channel": n.cfg.SlackChannel,
		"text":    summaryText(batch, diff),
	})
	if err != nil {
		return eris.Wrap(err, "notify: marshal slack message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.slackURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create slack request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.cfg.SlackToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: slack request")
	}
	defer resp.Body.Close() //nolint:errcheck

	var body struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return eris.Wrap(err, "notify: decode slack response")
	}
	if !body.OK {
		return eris.Errorf("notify: slack api error %q", body.Error)
	}
	return nil
}

// pingWebhook issues a bare GET to tell the downstream consumer fresh data
// is available. The webhook carries no payload; consumers re-query.
func (n *Notifier) pingWebhook(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.WebhookURL, nil)
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// summaryText renders the chat message for a committed batch.
func summaryText(batch *model.Batch, diff *model.EditDiff) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Batch %d committed by %s (%s)\n", batch.ID, batch.User, batch.EntryType)
	if batch.Note != "" {
		fmt.Fprintf(&b, "Note: %s\n", batch.Note)
	}
	if batch.RowsEdited > 0 {
		fmt.Fprintf(&b, "%d row(s) edited, dates %s\n", batch.RowsEdited, batch.ChangedDateRange)
	}
	if diff != nil && !diff.Empty() {
		b.WriteString(diff.PlainText())
	}
	return b.String()
}
