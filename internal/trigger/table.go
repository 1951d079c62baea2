package trigger

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadTable reads a phrase table override from a YAML file. Intents absent
// from the file keep the built-in variants.
func LoadTable(path string) (Table, error) {
	var table Table

	data, err := os.ReadFile(path)
	if err != nil {
		return table, fmt.Errorf("failed to read trigger table: %w", err)
	}

	if err := yaml.Unmarshal(data, &table); err != nil {
		return table, fmt.Errorf("failed to parse trigger table: %w", err)
	}

	return table, nil
}
