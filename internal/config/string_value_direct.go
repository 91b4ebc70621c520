package config

import (
	"context"
)

// StringValueDirect is a string specified inline in config.
type StringValueDirect struct {
	Value string `json:"value" yaml:"value"`
}

func (s *StringValueDirect) HasValue(ctx context.Context) bool {
	return s.Value != ""
}

func (s *StringValueDirect) GetValue(ctx context.Context) (string, error) {
	return s.Value, nil
}
