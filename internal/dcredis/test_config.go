package dcredis

import (
	"github.com/logang-di/dsx-connect/internal/config"
)

// MustApplyTestConfig swaps the config's redis section to a dedicated miniredis instance.
// Intended for tests that want isolated redis state while still exercising wireup logic.
func MustApplyTestConfig(cfg config.C) (config.C, Client) {
	// Avoid shared singletons for test cases
	miniredisServerPrevious := miniredisServer
	miniredisClientPrevious := miniredisClient
	miniredisErrPrevious := miniredisErr
	defer func() {
		miniredisServer = miniredisServerPrevious
		miniredisClient = miniredisClientPrevious
		miniredisErr = miniredisErrPrevious
	}()
	miniredisServer = nil
	miniredisClient = nil
	miniredisErr = nil

	if cfg == nil {
		cfg = config.FromRoot(&config.Root{})
	}

	root := cfg.GetRoot()
	if root == nil {
		panic("no root in config")
	}

	redisCfg := &config.RedisMiniredis{
		Provider: config.RedisProviderMiniredis,
	}
	root.Redis = redisCfg
	if root.SystemAuth.GlobalAESKey == nil {
		root.SystemAuth.GlobalAESKey = &config.KeyDataRandomBytes{}
	}

	r, err := NewMiniredis(redisCfg)
	if err != nil {
		panic(err)
	}

	return cfg, r
}
