package config

import (
	"context"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// StringValueFile is a string loaded from a file on disk, e.g. a mounted secret.
type StringValueFile struct {
	Path string `json:"path" yaml:"path"`
}

func (s *StringValueFile) HasValue(ctx context.Context) bool {
	path, err := homedir.Expand(s.Path)
	if err != nil {
		return false
	}

	_, err = os.Stat(path)
	return err == nil
}

func (s *StringValueFile) GetValue(ctx context.Context) (string, error) {
	path, err := homedir.Expand(s.Path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to expand path '%s'", s.Path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read string value from '%s'", path)
	}

	// Trailing newlines are common in mounted secret files.
	return strings.TrimRight(string(content), "\r\n"), nil
}
