package feeders

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YamlFeeder is a feeder that reads YAML files
type YamlFeeder struct {
	Path string
}

// NewYamlFeeder creates a new YamlFeeder that reads from the specified YAML file
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

// Feed decodes the whole file into structure.
func (y YamlFeeder) Feed(structure interface{}) error {
	data, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("failed to read YAML: %w", err)
	}
	if err := yaml.Unmarshal(data, structure); err != nil {
		return fmt.Errorf("failed to decode YAML %s: %w", y.Path, err)
	}
	return nil
}

// FeedKey decodes the top-level section key into target. A missing key
// leaves target untouched.
func (y YamlFeeder) FeedKey(key string, target interface{}) error {
	var sections map[string]yaml.Node
	if err := y.Feed(&sections); err != nil {
		return err
	}

	node, exists := sections[key]
	if !exists {
		return nil
	}
	if err := node.Decode(target); err != nil {
		return fmt.Errorf("failed to decode YAML section %q: %w", key, err)
	}
	return nil
}
