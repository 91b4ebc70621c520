package config

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// StringValue is a string that can be loaded from multiple sources depending on how it is
// specified in config: inline, base64, an environment variable, or a file. Used for
// secrets like enrollment tokens and API keys so they can be kept out of the config file.
type StringValue interface {
	// HasValue checks if this value is present on the system.
	HasValue(ctx context.Context) bool

	// GetValue retrieves the string value.
	GetValue(ctx context.Context) (string, error)
}

func UnmarshallYamlStringValue(data []byte) (StringValue, error) {
	var rootNode yaml.Node

	if err := yaml.Unmarshal(data, &rootNode); err != nil {
		return nil, err
	}

	return stringValueUnmarshalYAML(rootNode.Content[0])
}

// stringValueUnmarshalYAML handles unmarshalling from YAML while allowing us to make
// decisions about how the data is unmarshalled based on the concrete type being
// represented. A bare scalar is treated as a direct value.
func stringValueUnmarshalYAML(value *yaml.Node) (StringValue, error) {
	if value.Kind == yaml.ScalarNode {
		return &StringValueDirect{Value: value.Value}, nil
	}

	if value.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("string value expected a scalar or mapping node, got %s", KindToString(value.Kind))
	}

	var sv StringValue

fieldLoop:
	for i := 0; i < len(value.Content); i += 2 {
		keyNode := value.Content[i]

		switch keyNode.Value {
		case "value":
			sv = &StringValueDirect{}
			break fieldLoop
		case "base64":
			sv = &StringValueBase64{}
			break fieldLoop
		case "env_var":
			sv = &StringValueEnvVar{}
			break fieldLoop
		case "path":
			sv = &StringValueFile{}
			break fieldLoop
		}
	}

	if sv == nil {
		return nil, fmt.Errorf("invalid structure for string value; does not match value, base64, env_var, path")
	}

	if err := value.Decode(sv); err != nil {
		return nil, err
	}

	return sv, nil
}

// StringValues is a list of StringValue that also accepts a single value in YAML.
type StringValues []StringValue

var _ yaml.Unmarshaler = (*StringValues)(nil)

func (svs *StringValues) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		sv, err := stringValueUnmarshalYAML(value)
		if err != nil {
			return err
		}

		*svs = StringValues{sv}
		return nil
	}

	vals := make(StringValues, 0, len(value.Content))
	for _, node := range value.Content {
		sv, err := stringValueUnmarshalYAML(node)
		if err != nil {
			return err
		}

		vals = append(vals, sv)
	}

	*svs = vals
	return nil
}
