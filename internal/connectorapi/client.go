package connectorapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/h2non/gentleman.v2"
	"gopkg.in/h2non/gentleman.v2/plugins/timeout"

	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/hmacsig"
)

type client struct {
	connector     *database.Connector
	parent        *gentleman.Client
	readTimeout   time.Duration
	actionTimeout time.Duration
}

func newClient(connector *database.Connector, signer *hmacsig.Signer, readTimeout, actionTimeout time.Duration) Client {
	parent := gentleman.New().
		URL(strings.TrimRight(connector.BaseUrl, "/")).
		Use(signer.Plugin())

	return &client{
		connector:     connector,
		parent:        parent,
		readTimeout:   readTimeout,
		actionTimeout: actionTimeout,
	}
}

func (c *client) request(ctx context.Context, d time.Duration) *gentleman.Request {
	return gentleman.New().
		UseParent(c.parent).
		UseContext(ctx).
		Use(timeout.Request(d)).
		Request()
}

// classifyStatus maps a connector response status onto the retry taxonomy.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Wrapf(ErrAuthentication, "connector returned status %d", status)
	case status == http.StatusNotImplemented:
		return errors.Wrapf(ErrNotImplemented, "connector returned status %d", status)
	case status >= 500:
		return errors.Wrapf(ErrUnavailable, "connector returned status %d", status)
	default:
		return errors.Errorf("connector returned unexpected status %d", status)
	}
}

func (c *client) TriggerFullScan(ctx context.Context, req FullScanRequest) error {
	if !c.connector.Capabilities.Has(database.CapabilityFullScan) {
		return errors.Wrapf(ErrNotImplemented, "connector %s does not advertise full_scan", c.connector.ID)
	}

	resp, err := c.request(ctx, c.actionTimeout).
		Method(http.MethodPost).
		Path("/full_scan").
		JSON(req).
		Send()
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "full_scan call failed: %v", err)
	}
	defer resp.Close()

	if !resp.Ok {
		return classifyStatus(resp.StatusCode)
	}

	return nil
}

func (c *client) ReadFile(ctx context.Context, req ReadFileRequest) (io.ReadCloser, error) {
	if !c.connector.Capabilities.Has(database.CapabilityRead) {
		return nil, errors.Wrapf(ErrNotImplemented, "connector %s does not advertise read", c.connector.ID)
	}

	resp, err := c.request(ctx, c.readTimeout).
		Method(http.MethodPost).
		Path("/read_file").
		JSON(req).
		Send()
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "read_file call failed: %v", err)
	}

	if !resp.Ok {
		defer resp.Close()
		return nil, classifyStatus(resp.StatusCode)
	}

	// Content is streamed through the pipeline and discarded after verdict, so hand
	// the raw body to the caller instead of buffering it.
	return resp.RawResponse.Body, nil
}

func (c *client) ItemAction(ctx context.Context, req ItemActionRequest) (*ItemActionResult, error) {
	if !c.connector.Capabilities.Has(database.CapabilityItemAction) {
		return &ItemActionResult{
			JobId:   req.JobId,
			Action:  req.Action,
			Outcome: ActionOutcomeNotImplemented,
			Detail:  "connector does not advertise item_action",
		}, nil
	}

	resp, err := c.request(ctx, c.actionTimeout).
		Method(http.MethodPut).
		Path("/item_action").
		JSON(req).
		Send()
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "item_action call failed: %v", err)
	}
	defer resp.Close()

	if resp.StatusCode == http.StatusNotImplemented {
		return &ItemActionResult{
			JobId:   req.JobId,
			Action:  req.Action,
			Outcome: ActionOutcomeNotImplemented,
			Detail:  "connector does not implement item_action",
		}, nil
	}

	if !resp.Ok {
		return nil, classifyStatus(resp.StatusCode)
	}

	var result ItemActionResult
	if err := resp.JSON(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse item_action response")
	}

	// Connectors are not required to echo these back.
	result.JobId = req.JobId
	if result.Outcome == "" {
		result.Outcome = ActionOutcomeSucceeded
	}
	if result.Action == "" {
		result.Action = req.Action
	}

	return &result, nil
}

func (c *client) RepoCheck(ctx context.Context) error {
	resp, err := c.request(ctx, c.actionTimeout).
		Method(http.MethodGet).
		Path("/repo_check").
		Send()
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "repo_check call failed: %v", err)
	}
	defer resp.Close()

	if !resp.Ok {
		return classifyStatus(resp.StatusCode)
	}

	return nil
}
