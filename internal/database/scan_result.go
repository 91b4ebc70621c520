package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ScanResult is the durable per-item outcome of a completed job.
type ScanResult struct {
	ID          uuid.UUID `gorm:"column:id;primaryKey"`
	JobId       uuid.UUID `gorm:"column:job_id;index"`
	ConnectorId uuid.UUID `gorm:"column:connector_id;index"`
	ItemPath    string    `gorm:"column:item_path"`
	Verdict     Verdict   `gorm:"column:verdict"`
	Action      string    `gorm:"column:action"`
	Status      string    `gorm:"column:status"`
	ScannedAt   time.Time `gorm:"column:scanned_at"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (r *ScanResult) Validate() error {
	result := &multierror.Error{}

	if r.ID == uuid.Nil {
		result = multierror.Append(result, errors.New("id is required"))
	}

	if r.JobId == uuid.Nil {
		result = multierror.Append(result, errors.New("job id is required"))
	}

	if r.ConnectorId == uuid.Nil {
		result = multierror.Append(result, errors.New("connector id is required"))
	}

	if r.Verdict == "" {
		result = multierror.Append(result, errors.New("verdict is required"))
	}

	return result.ErrorOrNil()
}

// InsertScanResult persists a result and enforces the retention cap in the same
// transaction: when retention > 0 the oldest records beyond the cap are pruned.
func (s *service) InsertScanResult(ctx context.Context, r *ScanResult, retention int) error {
	if err := r.Validate(); err != nil {
		return err
	}

	return s.session(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(r).Error; err != nil {
			return errors.Wrap(err, "failed to insert scan result")
		}

		if retention <= 0 {
			return nil
		}

		// sqlite requires LIMIT -1 when using OFFSET on its own
		return tx.Exec(
			"DELETE FROM scan_results WHERE id IN (SELECT id FROM scan_results ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?)",
			retention,
		).Error
	})
}

func (s *service) GetScanResultForJob(ctx context.Context, jobId uuid.UUID) (*ScanResult, error) {
	var r ScanResult
	result := s.session(ctx).First(&r, "job_id = ?", jobId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return &r, nil
}

// ListScanResults returns results newest first, optionally scoped to a connector.
func (s *service) ListScanResults(ctx context.Context, connectorId *uuid.UUID, limit int) ([]*ScanResult, error) {
	if limit <= 0 {
		limit = 100
	}

	q := s.session(ctx)
	if connectorId != nil {
		q = q.Where("connector_id = ?", *connectorId)
	}

	var results []*ScanResult
	if result := q.Order("created_at DESC").Limit(limit).Find(&results); result.Error != nil {
		return nil, result.Error
	}

	return results, nil
}
