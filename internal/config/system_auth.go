package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// SystemAuth holds the trust-establishment configuration: the accepted enrollment tokens
// connectors bootstrap with, the HMAC verification windows, and the key protecting
// credentials at rest.
type SystemAuth struct {
	// EnrollmentTokens is the accepted set of bootstrap tokens. More than one value is
	// allowed so tokens can be rotated without a flag day.
	EnrollmentTokens StringValues `json:"enrollment_tokens" yaml:"enrollment_tokens"`

	// GlobalAESKey encrypts HMAC secrets at rest.
	GlobalAESKey KeyData `json:"global_aes_key" yaml:"global_aes_key"`

	// ClockSkewVal is the allowed difference between a request timestamp and server time.
	ClockSkewVal *HumanDuration `json:"clock_skew,omitempty" yaml:"clock_skew,omitempty"`
}

func (sa *SystemAuth) ClockSkew() time.Duration {
	if sa.ClockSkewVal == nil || sa.ClockSkewVal.Duration == 0 {
		return 5 * time.Minute
	}

	return sa.ClockSkewVal.Duration
}

// NonceRetention is how long used nonces are kept. A replayed request older than the
// clock skew window fails the timestamp check, so retaining nonces for twice the skew
// covers the full validity window.
func (sa *SystemAuth) NonceRetention() time.Duration {
	return 2 * sa.ClockSkew()
}

func (sa *SystemAuth) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("system auth expected a mapping node, got %s", KindToString(value.Kind))
	}

	var globalAESKey KeyData

	// Handle custom unmarshalling for some attributes. Iterate through the mapping node's
	// content, which will be sequences of keys, then values.
	for i := 0; i < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valueNode := value.Content[i+1]

		var err error
		matched := false

		switch keyNode.Value {
		case "global_aes_key":
			if globalAESKey, err = keyDataUnmarshalYAML(valueNode); err != nil {
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

	type raw SystemAuth
	if err := value.Decode((*raw)(sa)); err != nil {
		return err
	}

	sa.GlobalAESKey = globalAESKey
	return nil
}
