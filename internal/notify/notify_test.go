package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civistat/civistat/internal/model"
)

func testBatch() *model.Batch {
	now := time.Now().UTC()
	return &model.Batch{
		ID:               12,
		CreatedAt:        now,
		IsPublished:      true,
		PublishedAt:      &now,
		EntryType:        model.EntryTypeEdit,
		Note:             "corrected positives",
		User:             "editor",
		ChangedFields:    []string{"positive"},
		ChangedDateRange: "5/24/20",
		RowsEdited:       1,
	}
}

func testDiff() *model.EditDiff {
	return &model.EditDiff{
		ChangedRows: []model.ChangedRow{{
			Date:   "2020-05-24",
			Entity: "NY",
			Changed: []model.ChangedValue{
				{Field: "positive", Old: "15", New: "16"},
			},
		}},
	}
}

func TestBatchCommitted_SendsSlackAndWebhook(t *testing.T) {
	var slackBody map[string]string
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&slackBody))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer slack.Close()

	var webhookHits atomic.Int32
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		webhookHits.Add(1)
	}))
	defer webhook.Close()

	n := New(Config{
		SlackToken:   "xoxb-test",
		SlackChannel: "#data-entry",
		WebhookURL:   webhook.URL,
	})
	n.slackURL = slack.URL

	n.BatchCommitted(context.Background(), testBatch(), testDiff())

	assert.Equal(t, int32(1), webhookHits.Load())
	assert.Equal(t, "#data-entry", slackBody["channel"])
	assert.Contains(t, slackBody["text"], "Batch 12")
	assert.Contains(t, slackBody["text"], "positive: 15 -> 16")
	assert.Contains(t, slackBody["text"], "5/24/20")
}

func TestBatchCommitted_NothingConfigured(t *testing.T) {
	// No targets configured; must return without doing anything.
	n := New(Config{})
	n.BatchCommitted(context.Background(), testBatch(), testDiff())
}

func TestBatchCommitted_FailuresAreSwallowed(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer failing.Close()

	n := New(Config{
		SlackToken:   "xoxb-test",
		SlackChannel: "#nope",
		WebhookURL:   failing.URL,
	})
	n.slackURL = failing.URL

	// Must not panic or block; delivery errors are logged only.
	n.BatchCommitted(context.Background(), testBatch(), testDiff())
}

func TestSummaryText(t *testing.T) {
	text := summaryText(testBatch(), testDiff())
	assert.Contains(t, text, "Batch 12 committed by editor (edit)")
	assert.Contains(t, text, "Note: corrected positives")
	assert.Contains(t, text, "1 row(s) edited, dates 5/24/20")
	assert.Contains(t, text, "2020-05-24 NY")
}
