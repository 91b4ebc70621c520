package dcctx

import (
	"context"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

// Builder is an object that can apply multiple transformations and emit a context with those settings.
type Builder interface {
	WithClock(clock clock.Clock) Builder
	WithFixedClock(t time.Time) Builder
	WithUuidGenerator(generator UuidGenerator) Builder
	WithFixedUuidGenerator(u uuid.UUID) Builder
	Build() context.Context
}

type builder struct {
	ctx context.Context
}

// WithClock sets a clock on the context.
func (b *builder) WithClock(clock clock.Clock) Builder {
	return &builder{WithClock(b.ctx, clock)}
}

// WithFixedClock sets a fixed clock on the context that will always return the same time.
func (b *builder) WithFixedClock(t time.Time) Builder {
	return &builder{WithFixedClock(b.ctx, t)}
}

// WithUuidGenerator sets a UUID generator on the context.
func (b *builder) WithUuidGenerator(generator UuidGenerator) Builder {
	return &builder{WithUuidGenerator(b.ctx, generator)}
}

// WithFixedUuidGenerator sets a fixed UUID generator on the context that will always return the same UUID.
func (b *builder) WithFixedUuidGenerator(u uuid.UUID) Builder {
	return &builder{WithFixedUuidGenerator(b.ctx, u)}
}

// Build returns the context.
func (b *builder) Build() context.Context {
	return b.ctx
}

// NewBuilder creates a new builder with the given context.
func NewBuilder(ctx context.Context) Builder {
	return &builder{ctx}
}

// NewBuilderBackground creates a new builder with the background context.
func NewBuilderBackground() Builder {
	return NewBuilder(context.Background())
}
