package scanner

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/h2non/gentleman.v2"
	"gopkg.in/h2non/gentleman.v2/plugins/timeout"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/database"
)

// ItemPathHeader carries the item's connector-relative path on scan submissions so the
// engine can report it in its own telemetry.
const ItemPathHeader = "X-Dsx-Item-Path"

type client struct {
	cfg    config.C
	parent *gentleman.Client
}

// NewClient builds the HTTP client for the engine configured under `scanner`.
func NewClient(cfg config.C) S {
	sc := cfg.GetRoot().Scanner

	parent := gentleman.New().
		URL(strings.TrimRight(sc.Url, "/")).
		Use(timeout.Request(sc.Timeout()))

	return &client{
		cfg:    cfg,
		parent: parent,
	}
}

// scanResponse is the engine's verdict payload.
type scanResponse struct {
	Verdict        string `json:"verdict"`
	Classification string `json:"classification,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

func (c *client) Scan(ctx context.Context, itemPath string, content io.Reader) (*ScanOutcome, error) {
	req := gentleman.New().
		UseParent(c.parent).
		UseContext(ctx).
		Request().
		Method(http.MethodPost).
		Path("/scan").
		SetHeader("Content-Type", "application/octet-stream").
		SetHeader(ItemPathHeader, itemPath).
		Body(content)

	if err := c.addApiKey(ctx, req); err != nil {
		return nil, err
	}

	resp, err := req.Send()
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "scan call failed: %v", err)
	}
	defer resp.Close()

	if resp.StatusCode >= 500 {
		return nil, errors.Wrapf(ErrUnavailable, "scan call returned status %d", resp.StatusCode)
	}

	if !resp.Ok {
		return nil, errors.Errorf("scan call rejected with status %d", resp.StatusCode)
	}

	raw := resp.Bytes()

	var body scanResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.Wrap(err, "failed to parse scan response")
	}

	outcome := &ScanOutcome{
		Classification: body.Classification,
		Reason:         body.Reason,
		Metadata:       raw,
	}

	switch body.Verdict {
	case string(database.VerdictBenign):
		outcome.Verdict = database.VerdictBenign
	case string(database.VerdictMalicious):
		outcome.Verdict = database.VerdictMalicious
	default:
		outcome.Verdict = database.VerdictError
	}

	return outcome, nil
}

func (c *client) Ping(ctx context.Context) error {
	resp, err := gentleman.New().
		UseParent(c.parent).
		UseContext(ctx).
		Request().
		Method(http.MethodGet).
		Path("/healthz").
		Send()
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "ping failed: %v", err)
	}
	defer resp.Close()

	if !resp.Ok {
		return errors.Wrapf(ErrUnavailable, "ping returned status %d", resp.StatusCode)
	}

	return nil
}

func (c *client) addApiKey(ctx context.Context, req *gentleman.Request) error {
	apiKey := c.cfg.GetRoot().Scanner.ApiKey
	if apiKey == nil || !apiKey.HasValue(ctx) {
		return nil
	}

	val, err := apiKey.GetValue(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to resolve scanner api key")
	}

	req.SetHeader("Authorization", "Bearer "+val)
	return nil
}
