package config

import (
	"context"
	"os"

	"github.com/pkg/errors"
)

// StringValueEnvVar is a string loaded from an environment variable.
type StringValueEnvVar struct {
	EnvVar string `json:"env_var" yaml:"env_var"`
}

func (s *StringValueEnvVar) HasValue(ctx context.Context) bool {
	val, present := os.LookupEnv(s.EnvVar)
	return present && val != ""
}

func (s *StringValueEnvVar) GetValue(ctx context.Context) (string, error) {
	val, present := os.LookupEnv(s.EnvVar)
	if !present {
		return "", errors.Errorf("environment variable '%s' is not set", s.EnvVar)
	}

	return val, nil
}
