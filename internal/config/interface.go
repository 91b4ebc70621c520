package config

import (
	"context"
	"os"

	"github.com/logang-di/dsx-connect/internal/util"
)

type C interface {
	// GetRoot gets the root of the configuration; the data loaded from a configuration file
	GetRoot() *Root

	// IsDebugMode tells the system if debug flags have been passed when running this service
	IsDebugMode() bool

	// MustGetService gets the configuration for the specified service
	MustGetService(serviceId ServiceId) Service

	// MustGetAESKey retrieves the AES key used to symmetrically encrypt credentials at rest
	MustGetAESKey(ctx context.Context) []byte
}

type config struct {
	root *Root
}

func (c *config) GetRoot() *Root {
	if c == nil {
		return nil
	}

	return c.root
}

func (c *config) IsDebugMode() bool {
	return os.Getenv("DSX_CONNECT_DEBUG_MODE") == "true"
}

func (c *config) MustGetService(serviceId ServiceId) Service {
	r := c.GetRoot()
	if r == nil {
		panic("root config not present")
	}

	return r.MustServiceForId(serviceId)
}

func (c *config) MustGetAESKey(ctx context.Context) []byte {
	return util.Must(c.GetRoot().SystemAuth.GlobalAESKey.GetData(ctx))
}

func LoadConfig(path string) (C, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	root, err := UnmarshallYamlRoot(content)
	if err != nil {
		return nil, err
	}

	return &config{root: root}, nil
}

func FromRoot(root *Root) C {
	return &config{root: root}
}
