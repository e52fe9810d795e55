package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// TomlFeeder is a feeder that reads TOML files
type TomlFeeder struct {
	Path string
}

// NewTomlFeeder creates a new TomlFeeder that reads from the specified TOML file
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

// Feed decodes the whole file into structure.
func (t TomlFeeder) Feed(structure interface{}) error {
	if _, err := toml.DecodeFile(t.Path, structure); err != nil {
		return fmt.Errorf("failed to decode toml %s: %w", t.Path, err)
	}
	return nil
}

// FeedKey decodes the table named key into target. A missing table leaves
// target untouched.
func (t TomlFeeder) FeedKey(key string, target interface{}) error {
	var tables map[string]toml.Primitive
	md, err := toml.DecodeFile(t.Path, &tables)
	if err != nil {
		return fmt.Errorf("failed to read toml: %w", err)
	}

	prim, exists := tables[key]
	if !exists {
		return nil
	}
	if err := md.PrimitiveDecode(prim, target); err != nil {
		return fmt.Errorf("failed to decode toml table %q: %w", key, err)
	}
	return nil
}
