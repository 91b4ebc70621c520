package dclog

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type Builder interface {
	WithService(serviceId string) Builder
	WithComponent(componentId string) Builder
	WithTask(t *asynq.Task) Builder
	WithConnectorId(connectorId uuid.UUID) Builder
	WithJobId(jobId uuid.UUID) Builder
	WithStage(stage string) Builder
	With(args ...any) Builder
	Build() *slog.Logger
}

type builder struct {
	l *slog.Logger
}

func (b *builder) With(args ...any) Builder {
	return &builder{l: b.l.With(args...)}
}

func (b *builder) WithService(serviceId string) Builder {
	return &builder{l: b.l.With("service", serviceId)}
}

func (b *builder) WithComponent(componentId string) Builder {
	return &builder{l: b.l.With("component", componentId)}
}

func (b *builder) WithTask(t *asynq.Task) Builder {
	attrs := []any{
		slog.String("type", t.Type()),
	}

	// This is because the writer isn't present in tests
	w := t.ResultWriter()
	if w != nil {
		attrs = append(attrs, slog.String("id", w.TaskID()))
	}

	return &builder{l: b.l.With(slog.Group("task", attrs...))}
}

func (b *builder) WithConnectorId(connectorId uuid.UUID) Builder {
	return &builder{l: b.l.With("connector_id", connectorId.String())}
}

func (b *builder) WithJobId(jobId uuid.UUID) Builder {
	return &builder{l: b.l.With("job_id", jobId.String())}
}

func (b *builder) WithStage(stage string) Builder {
	return &builder{l: b.l.With("stage", stage)}
}

func (b *builder) Build() *slog.Logger {
	return b.l
}

func NewBuilder(l *slog.Logger) Builder {
	if l == nil {
		panic("cannot create log builder with nil log")
	}

	return &builder{l: l}
}

var _ Builder = &builder{}
