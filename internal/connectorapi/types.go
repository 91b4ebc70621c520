package connectorapi

import (
	"github.com/google/uuid"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/database"
)

// FullScanRequest asks a connector to enumerate its backend and submit one scan request
// per item. Filter is an include/exclude expression scoping the enumeration.
type FullScanRequest struct {
	FullScanId uuid.UUID `json:"full_scan_id"`
	Filter     string    `json:"filter,omitempty"`
}

// ReadFileRequest asks a connector to stream one item's content back.
type ReadFileRequest struct {
	Location string `json:"location"`
	Metainfo string `json:"metainfo,omitempty"`
}

// ItemActionRequest asks a connector to remediate one item following a malicious verdict.
type ItemActionRequest struct {
	JobId    uuid.UUID               `json:"job_id"`
	Location string                  `json:"location"`
	Metainfo string                  `json:"metainfo,omitempty"`
	Action   config.ItemActionPolicy `json:"action"`
	Verdict  database.Verdict        `json:"verdict"`
	Reason   string                  `json:"reason,omitempty"`
}

// ActionOutcome is how an item action ended up.
type ActionOutcome string

const (
	ActionOutcomeSucceeded      ActionOutcome = "succeeded"
	ActionOutcomeFailed         ActionOutcome = "failed"
	ActionOutcomeNotImplemented ActionOutcome = "not_implemented"
)

// ItemActionResult records the outcome of a remediation call. Produced only for jobs
// with a malicious verdict and a non-nothing policy.
type ItemActionResult struct {
	JobId   uuid.UUID               `json:"job_id"`
	Action  config.ItemActionPolicy `json:"action"`
	Outcome ActionOutcome           `json:"outcome"`
	Detail  string                  `json:"detail,omitempty"`
}
