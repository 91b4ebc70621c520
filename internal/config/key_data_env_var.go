package config

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/pkg/errors"
)

// KeyDataEnvVar reads base64-encoded key bytes from an environment variable.
type KeyDataEnvVar struct {
	EnvVar string `json:"env_var" yaml:"env_var"`
}

func (kd *KeyDataEnvVar) HasData(ctx context.Context) bool {
	val, present := os.LookupEnv(kd.EnvVar)
	return present && len(val) > 0
}

func (kd *KeyDataEnvVar) GetData(ctx context.Context) ([]byte, error) {
	val, present := os.LookupEnv(kd.EnvVar)
	if !present || len(val) == 0 {
		return nil, errors.Errorf("environment variable '%s' does not have value", kd.EnvVar)
	}

	decoded, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode base64 key data from environment variable '%s'", kd.EnvVar)
	}

	return decoded, nil
}
