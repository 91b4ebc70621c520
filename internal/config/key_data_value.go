package config

import (
	"context"
	"encoding/base64"

	"github.com/pkg/errors"
)

// KeyDataValue is where the key data is specified directly as a string in config.
type KeyDataValue struct {
	Value string `json:"value" yaml:"value"`
}

func (kd *KeyDataValue) HasData(ctx context.Context) bool {
	return len(kd.Value) > 0
}

func (kd *KeyDataValue) GetData(ctx context.Context) ([]byte, error) {
	return []byte(kd.Value), nil
}

// KeyDataBase64 is where the key data is specified as base64 encoded bytes.
type KeyDataBase64 struct {
	Base64 string `json:"base64" yaml:"base64"`
}

func (kd *KeyDataBase64) HasData(ctx context.Context) bool {
	return len(kd.Base64) > 0
}

func (kd *KeyDataBase64) GetData(ctx context.Context) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(kd.Base64)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode base64 key data")
	}

	return decoded, nil
}
