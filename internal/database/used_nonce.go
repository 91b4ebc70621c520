package database

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/dcctx"
)

const UsedNoncesTable = "used_nonces"

// UsedNonce represents a onetime use value (UUID) that has already been used in the
// system and cannot be used again. Nonces carry a retention time so the table does not
// grow unbounded; a record only needs to exist while the request timestamp it protected
// would still be accepted.
type UsedNonce struct {
	Id          uuid.UUID `gorm:"column:id;primaryKey"`
	RetainUntil time.Time `gorm:"column:retain_until;index"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (n *UsedNonce) cols() []string {
	return []string{
		"id",
		"retain_until",
		"created_at",
	}
}

func (n *UsedNonce) values() []any {
	return []any{
		n.Id,
		n.RetainUntil,
		n.CreatedAt,
	}
}

func (s *service) hasNonceBeenUsed(ctx context.Context, runner sq.BaseRunner, nonce uuid.UUID) (hasBeenUsed bool, err error) {
	var count int64
	err = s.sq.
		Select("COUNT(*)").
		From(UsedNoncesTable).
		Where(sq.Eq{"id": nonce}).
		RunWith(runner).
		QueryRowContext(ctx).
		Scan(&count)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (s *service) HasNonceBeenUsed(ctx context.Context, nonce uuid.UUID) (hasBeenUsed bool, err error) {
	return s.hasNonceBeenUsed(ctx, s.db, nonce)
}

// CheckNonceValidAndMarkUsed atomically verifies the nonce has never been seen and
// records it. Two requests racing on the same nonce resolve with exactly one winner.
func (s *service) CheckNonceValidAndMarkUsed(
	ctx context.Context,
	nonce uuid.UUID,
	retainRecordUntil time.Time,
) (wasValid bool, err error) {

	err = s.transaction(func(tx *sql.Tx) error {
		hasBeenUsed, err := s.hasNonceBeenUsed(ctx, tx, nonce)
		if err != nil {
			wasValid = false
			return err
		}

		if hasBeenUsed {
			wasValid = false
			return nil
		}

		newUsedNonce := UsedNonce{
			Id:          nonce,
			RetainUntil: retainRecordUntil,
			CreatedAt:   dcctx.GetClock(ctx).Now(),
		}
		dbResult, err := s.sq.
			Insert(UsedNoncesTable).
			Columns(newUsedNonce.cols()...).
			Values(newUsedNonce.values()...).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			wasValid = false
			return errors.Wrap(err, "failed to mark nonce as used")
		}

		affected, err := dbResult.RowsAffected()
		if err != nil {
			wasValid = false
			return errors.Wrap(err, "failed to mark nonce as used")
		}

		if affected != 1 {
			wasValid = false
			return errors.New("failed to mark nonce as used; no rows inserted")
		}

		wasValid = true
		return nil
	})

	if err != nil {
		return false, err
	}

	return wasValid, nil
}

// DeleteExpiredNonces removes nonce records whose retention window has passed. Run
// periodically from the worker.
func (s *service) DeleteExpiredNonces(ctx context.Context) (int64, error) {
	result, err := s.sq.
		Delete(UsedNoncesTable).
		Where(sq.Lt{"retain_until": dcctx.GetClock(ctx).Now()}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired nonces")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted nonces")
	}

	return affected, nil
}
