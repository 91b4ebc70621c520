package connectorapi

import (
	"github.com/pkg/errors"
)

// ErrUnavailable marks transient connector failures (network errors, timeouts, 5xx).
// The pipeline retries these against the connector retry budget.
var ErrUnavailable = errors.New("connector unavailable")

// ErrAuthentication marks requests the connector rejected as unauthenticated. Not
// retryable; typically means credentials were rotated out from under an in-flight job.
var ErrAuthentication = errors.New("connector rejected authentication")

// ErrNotImplemented marks operations the connector does not advertise or implement.
var ErrNotImplemented = errors.New("operation not implemented by connector")

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}
