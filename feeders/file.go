package feeders

import (
	"fmt"
	"path/filepath"
	"strings"
)

// KeyFeeder feeds one named section of a source into a target struct.
type KeyFeeder interface {
	Feed(structure interface{}) error
	FeedKey(key string, target interface{}) error
}

// ForFile picks the file feeder matching the path's extension.
func ForFile(path string) (KeyFeeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}
