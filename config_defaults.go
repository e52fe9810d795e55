package sage

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

const tagDefault = "default"

// ProcessConfigDefaults applies `default` tags to zero-valued fields of the
// struct cfg points to, recursing into nested structs.
func ProcessConfigDefaults(cfg interface{}) error {
	if cfg == nil {
		return ErrConfigNil
	}

	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrConfigNotPointer
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return ErrConfigNotStruct
	}

	return processStructDefaults(v)
}

// processStructDefaults recursively processes struct fields for default values
func processStructDefaults(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := processStructDefaults(field); err != nil {
				return err
			}
			continue
		}

		// Don't automatically initialize nil struct pointers
		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if !field.IsNil() {
				if err := processStructDefaults(field.Elem()); err != nil {
					return err
				}
			}
			continue
		}

		defaultVal, hasDefault := fieldType.Tag.Lookup(tagDefault)
		if !hasDefault || !field.IsZero() {
			continue
		}

		if err := setDefaultValue(field, defaultVal); err != nil {
			return fmt.Errorf("failed to set default value for %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setDefaultValue(field reflect.Value, defaultVal string) error {
	// Special handling for time.Duration type
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(defaultVal)
		if err != nil {
			return fmt.Errorf("failed to parse duration value: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(defaultVal)
		return nil
	case reflect.Bool:
		b, err := strconv.ParseBool(defaultVal)
		if err != nil {
			return fmt.Errorf("failed to parse bool value: %w", err)
		}
		field.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(defaultVal, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse int value: %w", err)
		}
		if field.OverflowInt(i) {
			return fmt.Errorf("%w: %d overflows %s", ErrDefaultValueOverflowsInt, i, field.Type())
		}
		field.SetInt(i)
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(defaultVal, 64)
		if err != nil {
			return fmt.Errorf("failed to parse float value: %w", err)
		}
		if field.OverflowFloat(f) {
			return fmt.Errorf("%w: %f overflows %s", ErrDefaultValueOverflowsFloat, f, field.Type())
		}
		field.SetFloat(f)
		return nil
	case reflect.Slice:
		return setDefaultSlice(field, defaultVal)
	case reflect.Map:
		return setDefaultMap(field, defaultVal)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedTypeForDefault, field.Kind())
	}
}

// setDefaultSlice sets a string slice default value from a JSON array
func setDefaultSlice(field reflect.Value, defaultVal string) error {
	if field.Type().Elem().Kind() != reflect.String {
		return fmt.Errorf("%w: slice of %s", ErrIncompatibleFieldKind, field.Type().Elem().Kind())
	}
	var strs []string
	if err := json.Unmarshal([]byte(defaultVal), &strs); err != nil {
		return fmt.Errorf("failed to unmarshal JSON array: %w", err)
	}
	sliceVal := reflect.MakeSlice(field.Type(), len(strs), len(strs))
	for i, s := range strs {
		sliceVal.Index(i).SetString(s)
	}
	field.Set(sliceVal)
	return nil
}

// setDefaultMap sets a map default value from a JSON object
func setDefaultMap(field reflect.Value, defaultVal string) error {
	if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
		return fmt.Errorf("%w: map of %s", ErrIncompatibleFieldKind, field.Type().Elem().Kind())
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(defaultVal), &m); err != nil {
		return fmt.Errorf("failed to unmarshal JSON map: %w", err)
	}
	mapVal := reflect.MakeMap(field.Type())
	for k, v := range m {
		mapVal.SetMapIndex(reflect.ValueOf(k).Convert(field.Type().Key()), reflect.ValueOf(v).Convert(field.Type().Elem()))
	}
	field.Set(mapVal)
	return nil
}
