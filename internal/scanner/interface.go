package scanner

import (
	"context"
	"encoding/json"
	"io"

	"github.com/logang-di/dsx-connect/internal/database"
)

// ScanOutcome is the engine's classification for one item. Immutable once produced.
type ScanOutcome struct {
	Verdict        database.Verdict `json:"verdict"`
	Classification string           `json:"classification,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	Metadata       json.RawMessage  `json:"metadata,omitempty"`
}

// S is a client for the malware-analysis engine. The engine is a black box behind a
// synchronous HTTP scan endpoint; content is streamed and never persisted here.
type S interface {
	// Scan submits the item content for analysis and blocks for the verdict. Errors
	// for which IsUnavailable returns true are transient and safe to retry.
	Scan(ctx context.Context, itemPath string, content io.Reader) (*ScanOutcome, error)

	// Ping checks the engine is reachable.
	Ping(ctx context.Context) error
}
