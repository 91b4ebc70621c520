package dcctx

import (
	"context"

	"github.com/google/uuid"
)

const uuidGeneratorKey contextKey = "uuidGenerator"

// UuidGenerator is an interface to an object that will provide UUIDs. The default implementation delegates
// to uuid.New(). This allows deterministic id generation in tests by using WithFixedUuidGenerator.
type UuidGenerator interface {
	// New creates a new random UUID.
	New() uuid.UUID
}

type realUuidGenerator struct{}

func (g *realUuidGenerator) New() uuid.UUID {
	return uuid.New()
}

var realUuidGeneratorVal UuidGenerator = &realUuidGenerator{}

// GetUuidGenerator retrieves a UUID generator from the context if one has been set. If not, it returns the
// real generator.
func GetUuidGenerator(ctx context.Context) UuidGenerator {
	val := ctx.Value(uuidGeneratorKey)
	if val == nil {
		return realUuidGeneratorVal
	}

	return val.(UuidGenerator)
}

// WithUuidGenerator sets a UUID generator on the context.
func WithUuidGenerator(ctx context.Context, generator UuidGenerator) context.Context {
	return context.WithValue(ctx, uuidGeneratorKey, generator)
}

type fixedUuidGenerator struct {
	u uuid.UUID
}

func (g *fixedUuidGenerator) New() uuid.UUID {
	return g.u
}

// WithFixedUuidGenerator sets a fixed UUID generator on the context that will always return the same UUID.
func WithFixedUuidGenerator(ctx context.Context, u uuid.UUID) context.Context {
	return WithUuidGenerator(ctx, &fixedUuidGenerator{u: u})
}
