package connectorapi

import (
	"context"
	"io"

	"github.com/logang-di/dsx-connect/internal/database"
)

// Client is the signed HTTP surface the core drives on one connector. Operations gate
// on the connector's advertised capabilities before any request is dispatched.
type Client interface {
	// TriggerFullScan asks the connector to enumerate and submit scan requests.
	TriggerFullScan(ctx context.Context, req FullScanRequest) error

	// ReadFile streams one item's content. The caller must close the returned reader.
	ReadFile(ctx context.Context, req ReadFileRequest) (io.ReadCloser, error)

	// ItemAction performs the configured remediation. A connector without the
	// item_action capability produces a not_implemented result without any dispatch.
	ItemAction(ctx context.Context, req ItemActionRequest) (*ItemActionResult, error)

	// RepoCheck is the liveness probe against the connector's backend.
	RepoCheck(ctx context.Context) error
}

// F builds signed clients for registered connectors.
type F interface {
	ForConnector(ctx context.Context, c *database.Connector) (Client, error)
}
