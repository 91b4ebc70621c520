package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DB interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) bool

	/*
	 * Connectors
	 */

	CreateConnector(ctx context.Context, c *Connector) error
	UpdateConnector(ctx context.Context, c *Connector) error
	GetConnector(ctx context.Context, id uuid.UUID) (*Connector, error)
	GetConnectorByHmacKeyId(ctx context.Context, keyId string) (*Connector, error)
	ListConnectors(ctx context.Context, statuses ...ConnectorStatus) ([]*Connector, error)
	SetConnectorStatus(ctx context.Context, id uuid.UUID, status ConnectorStatus) error
	SetConnectorHmacKeyId(ctx context.Context, id uuid.UUID, keyId string) error
	TouchConnectorLastSeen(ctx context.Context, id uuid.UUID) error
	UnregisterConnector(ctx context.Context, id uuid.UUID) error

	/*
	 * HMAC credentials
	 */

	CreateHmacCredential(ctx context.Context, c *HmacCredential) error
	GetHmacCredential(ctx context.Context, keyId string) (*HmacCredential, error)
	ReplaceHmacCredential(ctx context.Context, c *HmacCredential) error

	/*
	 * Scan jobs
	 */

	CreateScanJob(ctx context.Context, j *ScanJob) error
	GetScanJob(ctx context.Context, id uuid.UUID) (*ScanJob, error)
	AdvanceJobStage(ctx context.Context, id uuid.UUID, from, to JobStage) error
	SetJobVerdict(ctx context.Context, id uuid.UUID, verdict Verdict) error
	SetJobAction(ctx context.Context, id uuid.UUID, action string) error
	SetJobLastError(ctx context.Context, id uuid.UUID, lastError string) error
	IncrementJobAttempts(ctx context.Context, id uuid.UUID, class FailureClass, lastError string) (int, error)
	ResetJobForRequeue(ctx context.Context, id uuid.UUID, stage JobStage) error

	/*
	 * Dead letters
	 */

	CreateDeadLetter(ctx context.Context, d *DeadLetter) error
	GetDeadLetter(ctx context.Context, id uuid.UUID) (*DeadLetter, error)
	ListDeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error)
	MarkDeadLetterRequeued(ctx context.Context, id uuid.UUID) error

	/*
	 * Scan results
	 */

	InsertScanResult(ctx context.Context, r *ScanResult, retention int) error
	GetScanResultForJob(ctx context.Context, jobId uuid.UUID) (*ScanResult, error)
	ListScanResults(ctx context.Context, connectorId *uuid.UUID, limit int) ([]*ScanResult, error)

	/*
	 * Full scans
	 */

	CreateFullScan(ctx context.Context, f *FullScan) error
	GetFullScan(ctx context.Context, id uuid.UUID) (*FullScan, error)
	SetFullScanTotal(ctx context.Context, id uuid.UUID, total int64) error
	IncrementFullScanCompleted(ctx context.Context, id uuid.UUID) error
	SetFullScanState(ctx context.Context, id uuid.UUID, state FullScanState) error

	/*
	 * Connector state
	 */

	UpsertStateEntry(ctx context.Context, e *StateEntry) error
	GetStateEntry(ctx context.Context, connectorId uuid.UUID, namespace, key string) (*StateEntry, error)
	DeleteStateEntriesForConnector(ctx context.Context, connectorId uuid.UUID) error

	/*
	 * Nonces
	 */

	HasNonceBeenUsed(ctx context.Context, nonce uuid.UUID) (hasBeenUsed bool, err error)
	CheckNonceValidAndMarkUsed(ctx context.Context, nonce uuid.UUID, retainRecordUntil time.Time) (wasValid bool, err error)
	DeleteExpiredNonces(ctx context.Context) (int64, error)
}
