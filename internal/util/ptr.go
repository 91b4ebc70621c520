package util

// ToPtr returns a pointer to the passed value.
func ToPtr[T any](val T) *T {
	return &val
}
