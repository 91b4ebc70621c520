package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type RedisProvider string

const (
	RedisProviderRedis     RedisProvider = "redis"
	RedisProviderMiniredis RedisProvider = "miniredis"
)

type Redis interface {
	GetProvider() RedisProvider
}

// redisUnmarshalYAML handles unmarshalling from YAML while allowing us to make decisions
// about how the data is unmarshalled based on the concrete type being represented
func redisUnmarshalYAML(value *yaml.Node) (Redis, error) {
	if value.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("redis expected a mapping node, got %s", KindToString(value.Kind))
	}

	var r Redis

fieldLoop:
	for i := 0; i < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valueNode := value.Content[i+1]

		switch keyNode.Value {
		case "provider":
			switch RedisProvider(valueNode.Value) {
			case RedisProviderRedis:
				r = &RedisReal{}
				break fieldLoop
			case RedisProviderMiniredis:
				r = &RedisMiniredis{}
				break fieldLoop
			default:
				return nil, fmt.Errorf("unknown redis provider %v", valueNode.Value)
			}
		}
	}

	if r == nil {
		return nil, fmt.Errorf("invalid structure for redis; missing provider field")
	}

	if err := value.Decode(r); err != nil {
		return nil, err
	}

	return r, nil
}
