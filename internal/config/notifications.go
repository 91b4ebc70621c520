package config

import (
	"gopkg.in/yaml.v3"
)

// Notifications configures where scan events are fanned out after results are recorded.
type Notifications struct {
	// ChannelVal is the redis pub/sub channel events are published to.
	ChannelVal string `json:"channel,omitempty" yaml:"channel,omitempty"`

	// WebhookUrl, if set, also delivers each event as a JSON POST.
	WebhookUrl string `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`

	// WebhookSecret, if set, is used to sign webhook payloads.
	WebhookSecret StringValue `json:"webhook_secret,omitempty" yaml:"webhook_secret,omitempty"`
}

func (n *Notifications) Channel() string {
	if n == nil || n.ChannelVal == "" {
		return "dsx:events"
	}

	return n.ChannelVal
}

var _ yaml.Unmarshaler = (*Notifications)(nil)

func (n *Notifications) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return nil
	}

	for i := 1; i < len(value.Content); i += 2 {
		keyNode := value.Content[i-1]
		valNode := value.Content[i]

		if keyNode.Value == "webhook_secret" {
			sv, err := stringValueUnmarshalYAML(valNode)
			if err != nil {
				return err
			}

			n.WebhookSecret = sv
			value.Content = append(value.Content[:i-1], value.Content[i+1:]...)
			break
		}
	}

	type raw Notifications
	return value.Decode((*raw)(n))
}
