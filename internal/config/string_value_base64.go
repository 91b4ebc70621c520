package config

import (
	"context"
	"encoding/base64"

	"github.com/pkg/errors"
)

// StringValueBase64 is a base64-encoded string specified inline in config.
type StringValueBase64 struct {
	Base64 string `json:"base64" yaml:"base64"`
}

func (s *StringValueBase64) HasValue(ctx context.Context) bool {
	if s.Base64 == "" {
		return false
	}

	_, err := base64.StdEncoding.DecodeString(s.Base64)
	return err == nil
}

func (s *StringValueBase64) GetValue(ctx context.Context) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(s.Base64)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode base64 string value")
	}

	return string(decoded), nil
}
