package config

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

type RedisReal struct {
	Provider RedisProvider `json:"provider" yaml:"provider"`

	// The network type, either tcp or unix. Default is tcp.
	Network string `json:"network,omitempty" yaml:"network,omitempty"`

	// host:port address.
	Address string `json:"address" yaml:"address"`

	// Optional username when the server uses the Redis ACL system.
	Username StringValue `json:"username,omitempty" yaml:"username,omitempty"`

	// Optional password.
	Password StringValue `json:"password,omitempty" yaml:"password,omitempty"`

	// Database to be selected after connecting to the server.
	DB int `json:"db,omitempty" yaml:"db,omitempty"`
}

func (d *RedisReal) GetProvider() RedisProvider {
	return RedisProviderRedis
}

func (d *RedisReal) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("redis expected a mapping node, got %s", KindToString(value.Kind))
	}

	// Handle custom unmarshalling for polymorphic attributes. Iterate through the mapping
	// node's content, which will be sequences of keys, then values.
	for i := 0; i < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valueNode := value.Content[i+1]

		var err error
		matched := false

		switch keyNode.Value {
		case "username":
			if d.Username, err = stringValueUnmarshalYAML(valueNode); err != nil {
				return err
			}
			matched = true
		case "password":
			if d.Password, err = stringValueUnmarshalYAML(valueNode); err != nil {
				return err
			}
			matched = true
		}

		if matched {
			// Remove the key/value from the raw unmarshalling, and pull back our index
			// because of the changing slice size to the left of what we are indexing
			value.Content = append(value.Content[:i], value.Content[i+2:]...)
			i -= 2
		}
	}

	type raw RedisReal
	return value.Decode((*raw)(d))
}

func (d *RedisReal) ToRedisOptions(ctx context.Context) (*redis.Options, error) {
	options := redis.Options{
		Addr:                  d.Address,
		Network:               d.Network,
		DB:                    d.DB,
		ContextTimeoutEnabled: true,
	}

	if d.Username != nil && d.Username.HasValue(ctx) {
		username, err := d.Username.GetValue(ctx)
		if err != nil {
			return nil, err
		}
		options.Username = username
	}

	if d.Password != nil && d.Password.HasValue(ctx) {
		password, err := d.Password.GetValue(ctx)
		if err != nil {
			return nil, err
		}
		options.Password = password
	}

	return &options, nil
}
