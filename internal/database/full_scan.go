package database

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type FullScanState string

const (
	// FullScanStateEnumerating means the connector is still walking the repository and
	// submitting items; the total count is not yet known.
	FullScanStateEnumerating FullScanState = "enumerating"

	// FullScanStateProcessing means enumeration finished and the total is known; items
	// are still moving through the pipeline.
	FullScanStateProcessing FullScanState = "processing"

	FullScanStateCompleted FullScanState = "completed"
	FullScanStateFailed    FullScanState = "failed"
)

// Value implements the driver.Valuer interface for FullScanState
func (s FullScanState) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements the sql.Scanner interface for FullScanState
func (s *FullScanState) Scan(value interface{}) error {
	if value == nil {
		*s = ""
		return nil
	}

	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("cannot convert %T to FullScanState", value)
	}

	*s = FullScanState(strVal)
	return nil
}

type FullScan struct {
	ID          uuid.UUID     `gorm:"column:id;primaryKey"`
	ConnectorId uuid.UUID     `gorm:"column:connector_id;index"`
	Filter      string        `gorm:"column:filter"`
	State       FullScanState `gorm:"column:state"`

	// TotalItems is set once by enqueue_done; zero while enumerating.
	TotalItems     int64 `gorm:"column:total_items"`
	CompletedItems int64 `gorm:"column:completed_items"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (f *FullScan) Validate() error {
	result := &multierror.Error{}

	if f.ID == uuid.Nil {
		result = multierror.Append(result, errors.New("id is required"))
	}

	if f.ConnectorId == uuid.Nil {
		result = multierror.Append(result, errors.New("connector id is required"))
	}

	if f.State == "" {
		result = multierror.Append(result, errors.New("state is required"))
	}

	return result.ErrorOrNil()
}

func (s *service) CreateFullScan(ctx context.Context, f *FullScan) error {
	if err := f.Validate(); err != nil {
		return err
	}

	return s.session(ctx).Create(f).Error
}

func (s *service) GetFullScan(ctx context.Context, id uuid.UUID) (*FullScan, error) {
	var f FullScan
	result := s.session(ctx).First(&f, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return &f, nil
}

// SetFullScanTotal records the total enumerated item count and flips the scan to
// processing. Enumeration completion arrives exactly once.
func (s *service) SetFullScanTotal(ctx context.Context, id uuid.UUID, total int64) error {
	result := s.session(ctx).
		Model(&FullScan{}).
		Where("id = ? AND state = ?", id, FullScanStateEnumerating).
		Updates(map[string]interface{}{
			"total_items": total,
			"state":       FullScanStateProcessing,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// IncrementFullScanCompleted counts a finished item and marks the scan completed when
// every enumerated item has been processed.
func (s *service) IncrementFullScanCompleted(ctx context.Context, id uuid.UUID) error {
	return s.session(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Model(&FullScan{}).
			Where("id = ?", id).
			Update("completed_items", gorm.Expr("completed_items + 1"))
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		return tx.
			Model(&FullScan{}).
			Where("id = ? AND state = ? AND total_items > 0 AND completed_items >= total_items", id, FullScanStateProcessing).
			Update("state", FullScanStateCompleted).Error
	})
}

func (s *service) SetFullScanState(ctx context.Context, id uuid.UUID, state FullScanState) error {
	result := s.session(ctx).
		Model(&FullScan{}).
		Where("id = ?", id).
		Update("state", state)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
