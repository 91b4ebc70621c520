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

	"github.com/logang-di/dsx-connect/internal/dcctx"
)

type JobStage string

const (
	JobStageSubmitted      JobStage = "submitted"
	JobStageScanning       JobStage = "scanning"
	JobStageVerdictPending JobStage = "verdict_pending"
	JobStageActionPending  JobStage = "action_pending"
	JobStageResultPending  JobStage = "result_pending"
	JobStageNotified       JobStage = "notified"
	JobStageCompleted      JobStage = "completed"

	// JobStageFailedPermanent is terminal. Jobs land here when a retry budget is
	// exhausted or a non-retryable failure occurs; a dead letter row is written
	// alongside.
	JobStageFailedPermanent JobStage = "failed_permanent"
)

// stageOrder drives the no-backwards-transition guard. Terminal failure is allowed from
// any stage.
var stageOrder = map[JobStage]int{
	JobStageSubmitted:      0,
	JobStageScanning:       1,
	JobStageVerdictPending: 2,
	JobStageActionPending:  3,
	JobStageResultPending:  4,
	JobStageNotified:       5,
	JobStageCompleted:      6,
}

// Value implements the driver.Valuer interface for JobStage
func (s JobStage) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements the sql.Scanner interface for JobStage
func (s *JobStage) Scan(value interface{}) error {
	if value == nil {
		*s = ""
		return nil
	}

	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("cannot convert %T to JobStage", value)
	}

	*s = JobStage(strVal)
	return nil
}

type Verdict string

const (
	VerdictPending   Verdict = "pending"
	VerdictBenign    Verdict = "benign"
	VerdictMalicious Verdict = "malicious"
	VerdictError     Verdict = "error"
)

// Value implements the driver.Valuer interface for Verdict
func (v Verdict) Value() (driver.Value, error) {
	return string(v), nil
}

// Scan implements the sql.Scanner interface for Verdict
func (v *Verdict) Scan(value interface{}) error {
	if value == nil {
		*v = ""
		return nil
	}

	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("cannot convert %T to Verdict", value)
	}

	*v = Verdict(strVal)
	return nil
}

// FailureClass buckets pipeline failures for independent retry budgets.
type FailureClass string

const (
	FailureClassConnectorUnavailable FailureClass = "connector_unavailable"
	FailureClassScannerUnavailable   FailureClass = "scanner_unavailable"
	FailureClassAuthentication       FailureClass = "authentication_error"
	FailureClassMalformedPayload     FailureClass = "malformed_payload"
	FailureClassRemediation          FailureClass = "remediation_failure"
)

type ScanJob struct {
	ID          uuid.UUID  `gorm:"column:id;primaryKey"`
	ConnectorId uuid.UUID  `gorm:"column:connector_id;index"`
	FullScanId  *uuid.UUID `gorm:"column:full_scan_id;index"`
	ItemPath    string     `gorm:"column:item_path"`
	Metainfo    string     `gorm:"column:metainfo"`
	Stage       JobStage   `gorm:"column:stage;index"`
	Verdict     Verdict    `gorm:"column:verdict"`
	ActionTaken string     `gorm:"column:action_taken"`

	// Attempt counters are per failure class so a burst of connector flakiness does not
	// eat the scanner retry budget.
	ConnectorAttempts int `gorm:"column:connector_attempts"`
	ScannerAttempts   int `gorm:"column:scanner_attempts"`

	LastError string         `gorm:"column:last_error"`
	History   FailureHistory `gorm:"column:history;type:text"`

	SubmittedAt time.Time  `gorm:"column:submitted_at"`
	ScannedAt   *time.Time `gorm:"column:scanned_at"`
	ActionedAt  *time.Time `gorm:"column:actioned_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (j *ScanJob) Validate() error {
	result := &multierror.Error{}

	if j.ID == uuid.Nil {
		result = multierror.Append(result, errors.New("id is required"))
	}

	if j.ConnectorId == uuid.Nil {
		result = multierror.Append(result, errors.New("connector id is required"))
	}

	if j.ItemPath == "" {
		result = multierror.Append(result, errors.New("item path is required"))
	}

	if j.Stage == "" {
		result = multierror.Append(result, errors.New("stage is required"))
	}

	return result.ErrorOrNil()
}

func (s *service) CreateScanJob(ctx context.Context, j *ScanJob) error {
	if err := j.Validate(); err != nil {
		return err
	}

	return s.session(ctx).Create(j).Error
}

func (s *service) GetScanJob(ctx context.Context, id uuid.UUID) (*ScanJob, error) {
	var j ScanJob
	result := s.session(ctx).First(&j, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return &j, nil
}

// AdvanceJobStage moves a job from one stage to the next. The update is guarded on the
// current stage so a redelivered task cannot move a job backwards; a mismatch returns
// ErrStaleStage. Stage timestamps are stamped as the job passes the relevant stages.
func (s *service) AdvanceJobStage(ctx context.Context, id uuid.UUID, from, to JobStage) error {
	if to != JobStageFailedPermanent {
		fromOrder, ok := stageOrder[from]
		if !ok {
			return errors.Errorf("invalid from stage '%s'", from)
		}

		toOrder, ok := stageOrder[to]
		if !ok {
			return errors.Errorf("invalid to stage '%s'", to)
		}

		if toOrder <= fromOrder {
			return errors.Errorf("cannot move job from stage '%s' to earlier or same stage '%s'", from, to)
		}
	}

	now := dcctx.GetClock(ctx).Now().UTC()

	updates := map[string]interface{}{
		"stage": to,
	}

	switch to {
	case JobStageVerdictPending:
		updates["scanned_at"] = &now
	case JobStageResultPending:
		if from == JobStageActionPending {
			updates["actioned_at"] = &now
		}
	case JobStageCompleted, JobStageFailedPermanent:
		updates["completed_at"] = &now
	}

	result := s.session(ctx).
		Model(&ScanJob{}).
		Where("id = ? AND stage = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// Distinguish a missing job from a stage mismatch so callers can surface a 404.
		job, err := s.GetScanJob(ctx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return ErrNotFound
		}

		return ErrStaleStage
	}

	return nil
}

func (s *service) SetJobVerdict(ctx context.Context, id uuid.UUID, verdict Verdict) error {
	result := s.session(ctx).
		Model(&ScanJob{}).
		Where("id = ?", id).
		Update("verdict", verdict)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *service) SetJobAction(ctx context.Context, id uuid.UUID, action string) error {
	result := s.session(ctx).
		Model(&ScanJob{}).
		Where("id = ?", id).
		Update("action_taken", action)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// IncrementJobAttempts bumps the attempt counter for the failure class and records the
// error, returning the new count so callers can compare against the retry budget.
func (s *service) IncrementJobAttempts(ctx context.Context, id uuid.UUID, class FailureClass, lastError string) (int, error) {
	var column string
	switch class {
	case FailureClassConnectorUnavailable:
		column = "connector_attempts"
	case FailureClassScannerUnavailable:
		column = "scanner_attempts"
	default:
		return 0, errors.Errorf("failure class '%s' does not have a retry budget", class)
	}

	var count int
	err := s.session(ctx).Transaction(func(tx *gorm.DB) error {
		var j ScanJob
		if err := tx.First(&j, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		history := append(j.History, FailureAttempt{
			Class: class,
			Error: lastError,
			At:    dcctx.GetClock(ctx).Now().UTC(),
		})

		result := tx.
			Model(&ScanJob{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				column:       gorm.Expr(column + " + 1"),
				"last_error": lastError,
				"history":    history,
			})
		if result.Error != nil {
			return result.Error
		}

		if class == FailureClassConnectorUnavailable {
			count = j.ConnectorAttempts + 1
		} else {
			count = j.ScannerAttempts + 1
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (s *service) SetJobLastError(ctx context.Context, id uuid.UUID, lastError string) error {
	result := s.session(ctx).
		Model(&ScanJob{}).
		Where("id = ?", id).
		Update("last_error", lastError)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ResetJobForRequeue clears the attempt counters and moves a permanently failed job back
// to the passed stage so a dead letter can be requeued by an operator.
func (s *service) ResetJobForRequeue(ctx context.Context, id uuid.UUID, stage JobStage) error {
	if _, ok := stageOrder[stage]; !ok {
		return errors.Errorf("invalid stage '%s'", stage)
	}

	result := s.session(ctx).
		Model(&ScanJob{}).
		Where("id = ? AND stage = ?", id, JobStageFailedPermanent).
		Updates(map[string]interface{}{
			"stage":              stage,
			"connector_attempts": 0,
			"scanner_attempts":   0,
			"last_error":         "",
			"completed_at":       nil,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStaleStage
	}

	return nil
}
