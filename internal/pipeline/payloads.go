package pipeline

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/logang-di/dsx-connect/internal/connectorapi"
	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/results"
	"github.com/logang-di/dsx-connect/internal/util"
)

// The four pipeline stages run on dedicated queues so each can be drained and scaled
// independently.
const (
	QueueScanRequest   = "scan_request"
	QueueVerdictAction = "verdict_action"
	QueueScanResult    = "scan_result"
	QueueNotification  = "notification"
)

const (
	taskTypeScan          = "pipeline:scan"
	taskTypeVerdictAction = "pipeline:verdict_action"
	taskTypeResult        = "pipeline:result"
	taskTypeNotify        = "pipeline:notify"
)

// scanTaskPayload drives the scan stage: stream the item, get a verdict, route.
type scanTaskPayload struct {
	JobId uuid.UUID `json:"job_id"`
}

// actionTaskPayload drives the verdict-action stage. The verdict detail rides the
// payload because only the verdict enum is persisted on the job row.
type actionTaskPayload struct {
	JobId   uuid.UUID           `json:"job_id"`
	Verdict results.VerdictInfo `json:"verdict"`
}

// resultTaskPayload drives the result stage.
type resultTaskPayload struct {
	JobId   uuid.UUID                      `json:"job_id"`
	Verdict results.VerdictInfo            `json:"verdict"`
	Action  *connectorapi.ItemActionResult `json:"action,omitempty"`
}

// notifyTaskPayload drives the notification stage.
type notifyTaskPayload struct {
	JobId   uuid.UUID                      `json:"job_id"`
	Verdict results.VerdictInfo            `json:"verdict"`
	Action  *connectorapi.ItemActionResult `json:"action,omitempty"`
}

// maxDeliveries is an asynq-level ceiling; the real budgets are enforced per failure
// class in the handlers.
const maxDeliveries = 50

func newScanTask(p scanTaskPayload) *asynq.Task {
	return asynq.NewTask(
		taskTypeScan,
		util.Must(json.Marshal(p)),
		asynq.Queue(QueueScanRequest),
		asynq.MaxRetry(maxDeliveries),
	)
}

func newVerdictActionTask(p actionTaskPayload) *asynq.Task {
	return asynq.NewTask(
		taskTypeVerdictAction,
		util.Must(json.Marshal(p)),
		asynq.Queue(QueueVerdictAction),
		asynq.MaxRetry(maxDeliveries),
	)
}

func newResultTask(p resultTaskPayload) *asynq.Task {
	return asynq.NewTask(
		taskTypeResult,
		util.Must(json.Marshal(p)),
		asynq.Queue(QueueScanResult),
		asynq.MaxRetry(maxDeliveries),
	)
}

func newNotifyTask(p notifyTaskPayload) *asynq.Task {
	return asynq.NewTask(
		taskTypeNotify,
		util.Must(json.Marshal(p)),
		asynq.Queue(QueueNotification),
		asynq.MaxRetry(maxDeliveries),
	)
}

// deadLetterPayload is what a dead letter captures so the exact task can be rebuilt on
// operator requeue.
type deadLetterPayload struct {
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

var queueForTaskType = map[string]string{
	taskTypeScan:          QueueScanRequest,
	taskTypeVerdictAction: QueueVerdictAction,
	taskTypeResult:        QueueScanResult,
	taskTypeNotify:        QueueNotification,
}

// resumeStageForTaskType is the job stage a requeued job resumes in for each task type.
// The notify task runs while the job sits in result_pending.
var resumeStageForTaskType = map[string]database.JobStage{
	taskTypeScan:          database.JobStageSubmitted,
	taskTypeVerdictAction: database.JobStageActionPending,
	taskTypeResult:        database.JobStageResultPending,
	taskTypeNotify:        database.JobStageResultPending,
}

// taskForType rebuilds the task a dead-lettered job was running when it died.
func taskForType(taskType string, payload []byte) (*asynq.Task, bool) {
	queue, ok := queueForTaskType[taskType]
	if !ok {
		return nil, false
	}

	return asynq.NewTask(taskType, payload, asynq.Queue(queue), asynq.MaxRetry(maxDeliveries)), true
}
