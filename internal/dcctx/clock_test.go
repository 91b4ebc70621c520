package dcctx

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"
)

func TestClock(t *testing.T) {
	ctx := context.Background()

	// Real clock
	require.NotNil(t, GetClock(ctx))
	require.Less(t, GetClock(ctx).Now().Sub(time.Now()).Abs(), 1*time.Second)

	// Frozen clock
	tm := time.Date(2017, 10, 1, 0, 0, 0, 0, time.UTC)
	ctx = WithClock(ctx, clock.NewFakeClock(tm))
	require.Equal(t, tm, GetClock(ctx).Now())

	ctx = WithFixedClock(context.Background(), tm)
	require.Equal(t, tm, GetClock(ctx).Now())
}

func TestUuidGenerator(t *testing.T) {
	ctx := context.Background()

	// Real generator produces distinct values
	require.NotEqual(t, GetUuidGenerator(ctx).New(), GetUuidGenerator(ctx).New())

	// Fixed generator always returns the same value
	u := uuid.MustParse("27a827e8-a9a5-426f-87b6-b07b90f0b458")
	ctx = WithFixedUuidGenerator(ctx, u)
	require.Equal(t, u, GetUuidGenerator(ctx).New())
	require.Equal(t, u, GetUuidGenerator(ctx).New())
}

func TestBuilder(t *testing.T) {
	tm := time.Date(2017, 10, 1, 0, 0, 0, 0, time.UTC)
	u := uuid.MustParse("27a827e8-a9a5-426f-87b6-b07b90f0b458")

	ctx := NewBuilderBackground().
		WithFixedClock(tm).
		WithFixedUuidGenerator(u).
		Build()

	require.Equal(t, tm, GetClock(ctx).Now())
	require.Equal(t, u, GetUuidGenerator(ctx).New())
}
