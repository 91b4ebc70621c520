package dcredis

import (
	"context"
)

// Ping reports whether redis is reachable.
func Ping(ctx context.Context, c Client) bool {
	return c.Ping(ctx).Err() == nil
}
