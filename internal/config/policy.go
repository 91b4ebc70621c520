package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ItemActionPolicy is the remediation applied to an item that scanned malicious.
type ItemActionPolicy string

const (
	// ItemActionNothing records the verdict but leaves the item in place.
	ItemActionNothing ItemActionPolicy = "nothing"

	// ItemActionDelete removes the item from the repository.
	ItemActionDelete ItemActionPolicy = "delete"

	// ItemActionTag marks the item in place (e.g. object metadata or a label).
	ItemActionTag ItemActionPolicy = "tag"

	// ItemActionMove relocates the item to a quarantine location.
	ItemActionMove ItemActionPolicy = "move"

	// ItemActionMoveTag relocates and marks the item.
	ItemActionMoveTag ItemActionPolicy = "move_tag"
)

func (p ItemActionPolicy) IsValid() bool {
	switch p {
	case ItemActionNothing, ItemActionDelete, ItemActionTag, ItemActionMove, ItemActionMoveTag:
		return true
	}

	return false
}

func (p *ItemActionPolicy) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	v := ItemActionPolicy(s)
	if !v.IsValid() {
		return fmt.Errorf("invalid item action policy '%s'", s)
	}

	*p = v
	return nil
}
