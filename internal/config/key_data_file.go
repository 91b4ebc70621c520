package config

import (
	"context"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// KeyDataFile reads raw key bytes from a file on disk.
type KeyDataFile struct {
	Path string `json:"path" yaml:"path"`
}

func (kd *KeyDataFile) HasData(ctx context.Context) bool {
	if _, err := os.Stat(kd.Path); err != nil {
		path, err := homedir.Expand(kd.Path)
		if err != nil {
			return false
		}

		if _, err := os.Stat(path); err != nil {
			return false
		}
	}

	return true
}

func (kd *KeyDataFile) GetData(ctx context.Context) ([]byte, error) {
	path := kd.Path
	if _, err := os.Stat(path); os.IsNotExist(err) {
		var err2 error
		path, err2 = homedir.Expand(kd.Path)
		if err2 != nil {
			return nil, err
		}

		if _, err := os.Stat(path); err != nil {
			return nil, errors.Errorf("key file '%s' does not exist", kd.Path)
		}
	}

	return os.ReadFile(path)
}
