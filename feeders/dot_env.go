package feeders

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// DotEnvFeeder reads a .env file. Variables already present in the process
// environment take precedence over the file.
type DotEnvFeeder struct {
	Path   string
	Prefix string
}

// NewDotEnvFeeder creates a new DotEnvFeeder that reads from the specified .env file
func NewDotEnvFeeder(filePath, prefix string) DotEnvFeeder {
	return DotEnvFeeder{Path: filePath, Prefix: prefix}
}

// Load exports the file's variables into the process environment without
// overriding existing ones. A missing file is not an error.
func (f DotEnvFeeder) Load() error {
	err := godotenv.Load(f.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", f.Path, err)
	}
	return nil
}

// Feed populates env-tagged fields of structure using PREFIX_FIELD names.
func (f DotEnvFeeder) Feed(structure interface{}) error {
	lookup, err := f.lookup()
	if err != nil {
		return err
	}
	return feedStruct(structure, f.Prefix, "", lookup)
}

// FeedKey populates target using PREFIX_KEY_FIELD names.
func (f DotEnvFeeder) FeedKey(key string, target interface{}) error {
	lookup, err := f.lookup()
	if err != nil {
		return err
	}
	return feedStruct(target, sectionPrefix(f.Prefix, key), "", lookup)
}

func (f DotEnvFeeder) lookup() (lookupFunc, error) {
	values, err := godotenv.Read(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			values = map[string]string{}
		} else {
			return nil, fmt.Errorf("failed to parse .env file: %w", err)
		}
	}
	return func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		v, ok := values[name]
		return v, ok
	}, nil
}
