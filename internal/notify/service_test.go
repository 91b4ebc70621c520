package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/dclog"
	"github.com/logang-di/dsx-connect/internal/dcredis"
	"github.com/logang-di/dsx-connect/internal/results"
)

func testEvent() *results.Event {
	return &results.Event{
		Event:  "scan_result",
		JobId:  uuid.New(),
		Status: "action succeeded",
		Verdict: results.VerdictInfo{
			Outcome: database.VerdictMalicious,
		},
	}
}

func TestPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes to the configured channel", func(t *testing.T) {
		cfg, redis := dcredis.MustApplyTestConfig(config.FromRoot(&config.Root{}))
		n := NewNotifier(cfg, redis, dclog.NewNoopLogger())

		sub := redis.Subscribe(ctx, "dsx:events")
		defer sub.Close()
		_, err := sub.Receive(ctx)
		require.NoError(t, err)

		event := testEvent()
		require.NoError(t, n.Publish(ctx, event))

		select {
		case msg := <-sub.Channel():
			var got results.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
			assert.Equal(t, event.JobId, got.JobId)
			assert.Equal(t, "action succeeded", got.Status)
		case <-time.After(5 * time.Second):
			t.Fatal("no event received on channel")
		}
	})

	t.Run("delivers the signed webhook", func(t *testing.T) {
		received := make(chan *http.Request, 1)
		bodies := make(chan []byte, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			bodies <- body
			received <- r
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		cfg, redis := dcredis.MustApplyTestConfig(config.FromRoot(&config.Root{
			Notifications: config.Notifications{
				WebhookUrl:    srv.URL,
				WebhookSecret: &config.StringValueDirect{Value: "webhook-secret"},
			},
		}))
		n := NewNotifier(cfg, redis, dclog.NewNoopLogger())

		require.NoError(t, n.Publish(ctx, testEvent()))

		select {
		case r := <-received:
			body := <-bodies
			mac := hmac.New(sha256.New, []byte("webhook-secret"))
			mac.Write(body)
			assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), r.Header.Get(SignatureHeader))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		case <-time.After(5 * time.Second):
			t.Fatal("webhook not delivered")
		}
	})

	t.Run("webhook failure does not fail the publish", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		cfg, redis := dcredis.MustApplyTestConfig(config.FromRoot(&config.Root{
			Notifications: config.Notifications{WebhookUrl: srv.URL},
		}))
		n := NewNotifier(cfg, redis, dclog.NewNoopLogger())

		assert.NoError(t, n.Publish(ctx, testEvent()))
	})
}
