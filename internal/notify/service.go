package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/dcredis"
	"github.com/logang-di/dsx-connect/internal/results"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body when a webhook secret
// is configured, so receivers can authenticate deliveries.
const SignatureHeader = "X-Dsx-Webhook-Signature"

// N fans completed-job events out to subscribers: the redis channel the dashboard
// streams from, and an optional webhook.
type N interface {
	Publish(ctx context.Context, event *results.Event) error
}

type service struct {
	cfg    config.C
	redis  dcredis.Client
	http   *resty.Client
	logger *slog.Logger
}

func NewNotifier(cfg config.C, redis dcredis.Client, logger *slog.Logger) N {
	return &service{
		cfg:    cfg,
		redis:  redis,
		http:   resty.New(),
		logger: logger,
	}
}

func (s *service) Publish(ctx context.Context, event *results.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	notifications := s.cfg.GetRoot().Notifications

	if err := s.redis.Publish(ctx, notifications.Channel(), payload).Err(); err != nil {
		return errors.Wrap(err, "failed to publish event")
	}

	// The webhook is best effort: the pub/sub publish is the delivery that counts, and
	// retrying the stage for a flaky receiver would double-publish.
	if notifications.WebhookUrl != "" {
		if err := s.deliverWebhook(ctx, notifications, payload); err != nil {
			s.logger.Error("webhook delivery failed",
				"url", notifications.WebhookUrl,
				"job_id", event.JobId,
				"error", err)
		}
	}

	return nil
}

func (s *service) deliverWebhook(ctx context.Context, n config.Notifications, payload []byte) error {
	req := s.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload)

	if n.WebhookSecret != nil && n.WebhookSecret.HasValue(ctx) {
		secret, err := n.WebhookSecret.GetValue(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to resolve webhook secret")
		}

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		req.SetHeader(SignatureHeader, hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := req.Post(n.WebhookUrl)
	if err != nil {
		return err
	}

	if resp.IsError() {
		return errors.Errorf("webhook returned status %d", resp.StatusCode())
	}

	return nil
}
