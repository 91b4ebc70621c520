package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Scanner points at the malware-analysis engine. The engine is a black box behind a
// synchronous HTTP scan endpoint.
type Scanner struct {
	// Url is the base URL of the scanning engine.
	Url string `json:"url" yaml:"url"`

	// TimeoutVal bounds a single synchronous scan call, including streaming the file.
	TimeoutVal *HumanDuration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// ApiKey optionally authenticates to the engine.
	ApiKey StringValue `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

func (s *Scanner) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("scanner expected a mapping node, got %s", KindToString(value.Kind))
	}

	for i := 0; i < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valueNode := value.Content[i+1]

		if keyNode.Value == "api_key" {
			apiKey, err := stringValueUnmarshalYAML(valueNode)
			if err != nil {
				return err
			}
			s.ApiKey = apiKey

			value.Content = append(value.Content[:i], value.Content[i+2:]...)
			i -= 2
		}
	}

	type raw Scanner
	return value.Decode((*raw)(s))
}

func (s *Scanner) Timeout() time.Duration {
	if s.TimeoutVal == nil || s.TimeoutVal.Duration == 0 {
		return 60 * time.Second
	}

	return s.TimeoutVal.Duration
}
