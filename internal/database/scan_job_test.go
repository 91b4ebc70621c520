package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/logang-di/dsx-connect/internal/dcctx"
)

func testScanJob() *ScanJob {
	return &ScanJob{
		ID:          uuid.New(),
		ConnectorId: uuid.New(),
		ItemPath:    "Finance/q3-report.pdf",
		Stage:       JobStageSubmitted,
		Verdict:     VerdictPending,
		SubmittedAt: time.Now().UTC(),
	}
}

func TestScanJobs(t *testing.T) {
	t.Run("stage advancement stamps timestamps", func(t *testing.T) {
		_, db := MustApplyBlankTestDbConfig(t, nil)
		now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
		ctx := dcctx.NewBuilderBackground().WithClock(clock.NewFakeClock(now)).Build()

		j := testScanJob()
		require.NoError(t, db.CreateScanJob(ctx, j))

		require.NoError(t, db.AdvanceJobStage(ctx, j.ID, JobStageSubmitted, JobStageScanning))
		require.NoError(t, db.AdvanceJobStage(ctx, j.ID, JobStageScanning, JobStageVerdictPending))

		loaded, err := db.GetScanJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, JobStageVerdictPending, loaded.Stage)
		require.NotNil(t, loaded.ScannedAt)
		assert.WithinDuration(t, now, *loaded.ScannedAt, time.Second)
		assert.Nil(t, loaded.CompletedAt)

		require.NoError(t, db.AdvanceJobStage(ctx, j.ID, JobStageVerdictPending, JobStageResultPending))
		require.NoError(t, db.AdvanceJobStage(ctx, j.ID, JobStageResultPending, JobStageNotified))
		require.NoError(t, db.AdvanceJobStage(ctx, j.ID, JobStageNotified, JobStageCompleted))

		loaded, err = db.GetScanJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, JobStageCompleted, loaded.Stage)
		require.NotNil(t, loaded.CompletedAt)
	})

	t.Run("stale stage transition rejected", func(t *testing.T) {
		_, db := MustApplyBlankTestDbConfig(t, nil)
		ctx := context.Background()

		j := testScanJob()
		require.NoError(t, db.CreateScanJob(ctx, j))
		require.NoError(t, db.AdvanceJobStage(ctx, j.ID, JobStageSubmitted, JobStageScanning))

		// A redelivered task sees the old stage and must not move the job
		assert.ErrorIs(t, db.AdvanceJobStage(ctx, j.ID, JobStageSubmitted, JobStageScanning), ErrStaleStage)
	})

	t.Run("unknown job is not found rather than stale", func(t *testing.T) {
		_, db := MustApplyBlankTestDbConfig(t, nil)
		ctx := context.Background()

		err := db.AdvanceJobStage(ctx, uuid.New(), JobStageSubmitted, JobStageScanning)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("backwards transition rejected", func(t *testing.T) {
		_, db := MustApplyBlankTestDbConfig(t, nil)
		ctx := context.Background()

		j := testScanJob()
		require.NoError(t, db.CreateScanJob(ctx, j))

		err := db.AdvanceJobStage(ctx, j.ID, JobStageScanning, JobStageSubmitted)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "earlier or same stage")
	})

	t.Run("terminal failure allowed from any stage", func(t *testing.T) {
		_, db := MustApplyBlankTestDbConfig(t, nil)
		ctx := context.Background()

		j := testScanJob()
		require.NoError(t, db.CreateScanJob(ctx, j))
		require.NoError(t, db.AdvanceJobStage(ctx, j.ID, JobStageSubmitted, JobStageFailedPermanent))

		loaded, err := db.GetScanJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, JobStageFailedPermanent, loaded.Stage)
		assert.NotNil(t, loaded.CompletedAt)
	})

	t.Run("attempt counters are independent per class", func(t *testing.T) {
		_, db := MustApplyBlankTestDbConfig(t, nil)
		ctx := context.Background()

		j := testScanJob()
		require.NoError(t, db.CreateScanJob(ctx, j))

		count, err := db.IncrementJobAttempts(ctx, j.ID, FailureClassConnectorUnavailable, "dial tcp: refused")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = db.IncrementJobAttempts(ctx, j.ID, FailureClassConnectorUnavailable, "dial tcp: refused")
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		count, err = db.IncrementJobAttempts(ctx, j.ID, FailureClassScannerUnavailable, "scanner 503")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		loaded, err := db.GetScanJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, loaded.ConnectorAttempts)
		assert.Equal(t, 1, loaded.ScannerAttempts)
		assert.Equal(t, "scanner 503", loaded.LastError)
	})

	t.Run("non budgeted class has no counter", func(t *testing.T) {
		_, db := MustApplyBlankTestDbConfig(t, nil)
		ctx := context.Background()

		j := testScanJob()
		require.NoError(t, db.CreateScanJob(ctx, j))

		_, err := db.IncrementJobAttempts(ctx, j.ID, FailureClassAuthentication, "bad signature")
		require.Error(t, err)
	})

	t.Run("requeue resets failed job", func(t *testing.T) {
		_, db := MustApplyBlankTestDbConfig(t, nil)
		ctx := context.Background()

		j := testScanJob()
		require.NoError(t, db.CreateScanJob(ctx, j))

		_, err := db.IncrementJobAttempts(ctx, j.ID, FailureClassConnectorUnavailable, "unreachable")
		require.NoError(t, err)
		require.NoError(t, db.AdvanceJobStage(ctx, j.ID, JobStageSubmitted, JobStageFailedPermanent))

		require.NoError(t, db.ResetJobForRequeue(ctx, j.ID, JobStageSubmitted))

		loaded, err := db.GetScanJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, JobStageSubmitted, loaded.Stage)
		assert.Equal(t, 0, loaded.ConnectorAttempts)
		assert.Empty(t, loaded.LastError)
		assert.Nil(t, loaded.CompletedAt)

		// Only permanently failed jobs can be requeued
		assert.ErrorIs(t, db.ResetJobForRequeue(ctx, j.ID, JobStageSubmitted), ErrStaleStage)
	})

	t.Run("verdict and action", func(t *testing.T) {
		_, db := MustApplyBlankTestDbConfig(t, nil)
		ctx := context.Background()

		j := testScanJob()
		require.NoError(t, db.CreateScanJob(ctx, j))

		require.NoError(t, db.SetJobVerdict(ctx, j.ID, VerdictMalicious))
		require.NoError(t, db.SetJobAction(ctx, j.ID, "move_tag"))

		loaded, err := db.GetScanJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, VerdictMalicious, loaded.Verdict)
		assert.Equal(t, "move_tag", loaded.ActionTaken)
	})
}

func TestDeadLetters(t *testing.T) {
	t.Run("round trip with history", func(t *testing.T) {
		_, db := MustApplyBlankTestDbConfig(t, nil)
		ctx := context.Background()

		d := &DeadLetter{
			ID:          uuid.New(),
			JobId:       uuid.New(),
			ConnectorId: uuid.New(),
			Stage:       JobStageScanning,
			Class:       FailureClassScannerUnavailable,
			History: FailureHistory{
				{Class: FailureClassScannerUnavailable, Error: "503", At: time.Now().UTC()},
				{Class: FailureClassScannerUnavailable, Error: "503", At: time.Now().UTC()},
			},
			Payload: []byte(`{"job_id":"x"}`),
		}
		require.NoError(t, db.CreateDeadLetter(ctx, d))

		loaded, err := db.GetDeadLetter(ctx, d.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, JobStageScanning, loaded.Stage)
		require.Len(t, loaded.History, 2)
		assert.Equal(t, FailureClassScannerUnavailable, loaded.History[0].Class)
	})

	t.Run("requeue is once only", func(t *testing.T) {
		_, db := MustApplyBlankTestDbConfig(t, nil)
		ctx := context.Background()

		d := &DeadLetter{
			ID:    uuid.New(),
			JobId: uuid.New(),
			Stage: JobStageScanning,
		}
		require.NoError(t, db.CreateDeadLetter(ctx, d))

		list, err := db.ListDeadLetters(ctx, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)

		require.NoError(t, db.MarkDeadLetterRequeued(ctx, d.ID))
		assert.ErrorIs(t, db.MarkDeadLetterRequeued(ctx, d.ID), ErrNotFound)

		list, err = db.ListDeadLetters(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}
