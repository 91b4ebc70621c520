package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Root is the top of the YAML config tree.
type Root struct {
	Api           ServiceApi       `json:"api" yaml:"api"`
	Worker        ServiceWorker    `json:"worker" yaml:"worker"`
	SystemAuth    SystemAuth       `json:"system_auth" yaml:"system_auth"`
	Database      Database         `json:"database" yaml:"database"`
	Redis         Redis            `json:"redis" yaml:"redis"`
	Scanner       Scanner          `json:"scanner" yaml:"scanner"`
	Pipeline      Pipeline         `json:"pipeline" yaml:"pipeline"`
	Registry      Registry         `json:"registry" yaml:"registry"`
	Results       Results          `json:"results" yaml:"results"`
	Notifications Notifications    `json:"notifications" yaml:"notifications"`
	ItemAction    ItemActionPolicy `json:"item_action" yaml:"item_action"`
	Logging       LoggingConfig    `json:"logging" yaml:"logging"`
}

func (r *Root) MustServiceForId(serviceId ServiceId) Service {
	switch serviceId {
	case ServiceIdApi:
		return &r.Api
	case ServiceIdWorker:
		return &r.Worker
	}

	panic(fmt.Sprintf("invalid service id %s", serviceId))
}

var _ yaml.Unmarshaler = (*Root)(nil)

func (r *Root) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("root config must be a mapping, got %s", KindToString(value.Kind))
	}

	// Database and redis are interface-typed so they decode through their dispatchers
	// before the rest of the tree decodes normally.
	for i := len(value.Content) - 1; i >= 1; i -= 2 {
		keyNode := value.Content[i-1]
		valNode := value.Content[i]

		switch keyNode.Value {
		case "database":
			db, err := databaseUnmarshalYAML(valNode)
			if err != nil {
				return err
			}

			r.Database = db
			value.Content = append(value.Content[:i-1], value.Content[i+1:]...)
		case "redis":
			rd, err := redisUnmarshalYAML(valNode)
			if err != nil {
				return err
			}

			r.Redis = rd
			value.Content = append(value.Content[:i-1], value.Content[i+1:]...)
		}
	}

	type raw Root
	if err := value.Decode((*raw)(r)); err != nil {
		return err
	}

	if r.ItemAction == "" {
		r.ItemAction = ItemActionNothing
	}

	return nil
}

func UnmarshallYamlRootString(data string) (*Root, error) {
	return UnmarshallYamlRoot([]byte(data))
}

func UnmarshallYamlRoot(data []byte) (*Root, error) {
	var root Root
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	return &root, nil
}
