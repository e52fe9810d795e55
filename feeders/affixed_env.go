// Package feeders provides configuration feeders for reading data from various sources
// including environment variables, YAML and TOML files, and .env files.
package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// lookupFunc resolves a fully affixed variable name.
type lookupFunc func(name string) (string, bool)

// AffixedEnvFeeder is a feeder that reads environment variables with a prefix and/or suffix
type AffixedEnvFeeder struct {
	Prefix string
	Suffix string
}

// NewAffixedEnvFeeder creates a new AffixedEnvFeeder with the specified prefix and suffix
func NewAffixedEnvFeeder(prefix, suffix string) AffixedEnvFeeder {
	return AffixedEnvFeeder{Prefix: prefix, Suffix: suffix}
}

// Feed reads environment variables and populates the provided structure
func (f AffixedEnvFeeder) Feed(structure interface{}) error {
	return feedStruct(structure, f.Prefix, f.Suffix, os.LookupEnv)
}

// FeedKey populates target from variables named PREFIX_KEY_FIELD, so
// SAGE_CONVERSATION_LISTENING_TIMEOUT feeds the conversation section.
func (f AffixedEnvFeeder) FeedKey(key string, target interface{}) error {
	return feedStruct(target, sectionPrefix(f.Prefix, key), f.Suffix, os.LookupEnv)
}

func sectionPrefix(prefix, key string) string {
	key = strings.ReplaceAll(key, "-", "_")
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

func feedStruct(structure interface{}, prefix, suffix string, lookup lookupFunc) error {
	inputType := reflect.TypeOf(structure)
	if inputType == nil || inputType.Kind() != reflect.Ptr || inputType.Elem().Kind() != reflect.Struct {
		return ErrEnvInvalidStructure
	}
	if prefix == "" && suffix == "" {
		return ErrEnvEmptyPrefixAndSuffix
	}
	return processStructFields(reflect.ValueOf(structure).Elem(), strings.ToUpper(prefix), strings.ToUpper(suffix), lookup)
}

// processStructFields iterates through struct fields
func processStructFields(rv reflect.Value, prefix, suffix string, lookup lookupFunc) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if !fieldType.IsExported() {
			continue
		}
		if err := processField(field, &fieldType, prefix, suffix, lookup); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

func processField(field reflect.Value, fieldType *reflect.StructField, prefix, suffix string, lookup lookupFunc) error {
	envTag, hasTag := fieldType.Tag.Lookup("env")

	switch field.Kind() {
	case reflect.Struct:
		// time.Time and similar leaf structs are not walked
		if !hasTag {
			return processStructFields(field, prefix, suffix, lookup)
		}
	case reflect.Pointer:
		if !field.IsZero() && field.Elem().Kind() == reflect.Struct {
			return processStructFields(field.Elem(), prefix, suffix, lookup)
		}
		return nil
	}

	if !hasTag {
		return nil
	}
	return setFieldFromEnv(field, envTag, prefix, suffix, lookup)
}

// setFieldFromEnv sets a field value from an environment variable
func setFieldFromEnv(field reflect.Value, envTag, prefix, suffix string, lookup lookupFunc) error {
	envName := strings.ToUpper(envTag)
	if prefix != "" {
		envName = prefix + "_" + envName
	}
	if suffix != "" {
		envName = envName + "_" + suffix
	}

	if envValue, ok := lookup(envName); ok && envValue != "" {
		return setFieldValue(field, envValue)
	}
	return nil
}

// setFieldValue converts and sets a field value. Slices of strings are read
// as comma separated lists.
func setFieldValue(field reflect.Value, strValue string) error {
	if !field.CanSet() {
		return ErrFieldCannotBeSet
	}

	if field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String {
		parts := strings.Split(strValue, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				slice = reflect.Append(slice, reflect.ValueOf(p).Convert(field.Type().Elem()))
			}
		}
		field.Set(slice)
		return nil
	}

	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(strValue)
		if err != nil {
			return fmt.Errorf("cannot convert value to duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	convertedValue, err := cast.FromType(strValue, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	field.Set(reflect.ValueOf(convertedValue).Convert(field.Type()))
	return nil
}
