package database

import "errors"

// ErrNotFound is returned when a database operation that is expected to find a record does not find the record.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a database operation that is expected to be unique fails because a duplicate record
// already exists.
var ErrDuplicate = errors.New("duplicate record")

// ErrStaleStage is returned when a guarded job stage transition finds the job in a different stage than expected.
var ErrStaleStage = errors.New("job is not in the expected stage")
