package pipeline

import (
	"time"

	"github.com/hibiken/asynq"

	"github.com/logang-di/dsx-connect/internal/config"
)

// RetryDelayFunc builds the asynq retry delay function for the stage queues:
// exponential from the configured base, capped at the configured max.
func RetryDelayFunc(cfg config.C) asynq.RetryDelayFunc {
	p := cfg.GetRoot().Pipeline

	return func(n int, _ error, _ *asynq.Task) time.Duration {
		base := p.RetryBaseDelay()
		max := p.RetryMaxDelay()

		d := base
		for i := 0; i < n; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}

		return d
	}
}
