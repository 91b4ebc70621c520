package config

// RedisMiniredis runs an in-process miniredis instance. Only suitable for tests and
// single-process dev setups; worker and api services will not share state across
// processes with this provider.
type RedisMiniredis struct {
	Provider RedisProvider `json:"provider" yaml:"provider"`
}

func (d *RedisMiniredis) GetProvider() RedisProvider {
	return RedisProviderMiniredis
}
