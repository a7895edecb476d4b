package tiers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadOverrides merges tier profiles from a YAML file into r. The file
// maps tier names to profiles; tiers absent from the file keep their
// built-in profile, and fields absent from an entry keep their current
// value. Unknown tier names are an error.
//
//	frontier:
//	  models: ["gpt-4.1", "gpt-4o-mini"]
//	  cost_per_1m_input: 2.00
//	  cost_per_1m_output: 8.00
func (r *Registry) LoadOverrides(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tier config: %w", err)
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("tier config: %w", err)
	}

	for name, node := range doc {
		t := Tier(name)
		p, ok := r.profiles[t]
		if !ok {
			return fmt.Errorf("tier config: unknown tier %q", name)
		}
		if err := node.Decode(&p); err != nil {
			return fmt.Errorf("tier config: %s: %w", name, err)
		}
		r.profiles[t] = p
	}
	return nil
}
