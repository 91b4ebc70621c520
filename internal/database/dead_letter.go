package database

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/logang-di/dsx-connect/internal/dcctx"
)

// FailureAttempt is a single failed attempt in a dead letter's history.
type FailureAttempt struct {
	Class FailureClass `json:"class"`
	Error string       `json:"error"`
	At    time.Time    `json:"at"`
}

// FailureHistory is the ordered list of attempts that led to a dead letter.
type FailureHistory []FailureAttempt

// Value implements the driver.Valuer interface for FailureHistory
func (h FailureHistory) Value() (driver.Value, error) {
	if len(h) == 0 {
		return nil, nil
	}

	return json.Marshal(h)
}

// Scan implements the sql.Scanner interface for FailureHistory
func (h *FailureHistory) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}

	switch v := value.(type) {
	case string:
		return json.Unmarshal([]byte(v), h)
	case []byte:
		return json.Unmarshal(v, h)
	default:
		return fmt.Errorf("cannot convert %T to FailureHistory", value)
	}
}

// DeadLetter records a job whose retry budget was exhausted or that failed on a
// non-retryable error. It carries enough to requeue: the stage the job died in and the
// task payload as enqueued.
type DeadLetter struct {
	ID          uuid.UUID      `gorm:"column:id;primaryKey"`
	JobId       uuid.UUID      `gorm:"column:job_id;index"`
	ConnectorId uuid.UUID      `gorm:"column:connector_id;index"`
	Stage       JobStage       `gorm:"column:stage"`
	Class       FailureClass   `gorm:"column:class"`
	History     FailureHistory `gorm:"column:history;type:text"`
	Payload     []byte         `gorm:"column:payload"`
	RequeuedAt  *time.Time     `gorm:"column:requeued_at"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

func (d *DeadLetter) Validate() error {
	result := &multierror.Error{}

	if d.ID == uuid.Nil {
		result = multierror.Append(result, errors.New("id is required"))
	}

	if d.JobId == uuid.Nil {
		result = multierror.Append(result, errors.New("job id is required"))
	}

	if d.Stage == "" {
		result = multierror.Append(result, errors.New("stage is required"))
	}

	return result.ErrorOrNil()
}

func (s *service) CreateDeadLetter(ctx context.Context, d *DeadLetter) error {
	if err := d.Validate(); err != nil {
		return err
	}

	return s.session(ctx).Create(d).Error
}

func (s *service) GetDeadLetter(ctx context.Context, id uuid.UUID) (*DeadLetter, error) {
	var d DeadLetter
	result := s.session(ctx).First(&d, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return &d, nil
}

// ListDeadLetters returns dead letters that have not been requeued, newest first.
func (s *service) ListDeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}

	var deadLetters []*DeadLetter
	result := s.session(ctx).
		Where("requeued_at IS NULL").
		Order("created_at DESC").
		Limit(limit).
		Find(&deadLetters)
	if result.Error != nil {
		return nil, result.Error
	}

	return deadLetters, nil
}

// MarkDeadLetterRequeued stamps the dead letter as handled. Guarded so a dead letter can
// only be requeued once.
func (s *service) MarkDeadLetterRequeued(ctx context.Context, id uuid.UUID) error {
	now := dcctx.GetClock(ctx).Now().UTC()

	result := s.session(ctx).
		Model(&DeadLetter{}).
		Where("id = ? AND requeued_at IS NULL", id).
		Update("requeued_at", &now)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
