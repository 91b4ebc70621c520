package scanner

import (
	"github.com/pkg/errors"
)

// ErrUnavailable marks transient engine failures (network errors, timeouts, 5xx).
// The pipeline retries these against the scanner retry budget.
var ErrUnavailable = errors.New("scanner unavailable")

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
