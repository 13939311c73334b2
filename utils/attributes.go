package utils

import (
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is a free-form set of type specific attributes, as read from JSON.
type AttributeMap map[string]interface{}

// Has returns whether the given name is set.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// String returns the string at name, or "" when unset or not a string.
func (am AttributeMap) String(name string) string {
	if s, ok := am[name].(string); ok {
		return s
	}
	return ""
}

// Validator is implemented by typed attribute structs. path names the config location for error
// messages.
type Validator interface {
	Validate(path string) error
}

// NativeConfig decodes attributes into a T using the json tags of T. Unknown attribute names are an
// error. Duration fields accept strings such as "33ms".
func NativeConfig[T any](attributes AttributeMap) (T, error) {
	var out T
	var forResult interface{}

	toT := reflect.TypeOf(out)
	if toT != nil && toT.Kind() == reflect.Ptr {
		// needs to be allocated then
		var ok bool
		out, ok = reflect.New(toT.Elem()).Interface().(T)
		if !ok {
			return out, errors.Errorf("failed to allocate config type %T", out)
		}
		forResult = out
	} else {
		forResult = &out
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      forResult,
		ErrorUnused: true,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return out, errors.Wrapf(err, "cannot decode attributes into %T", out)
	}
	return out, nil
}

// ValidatedConfig is NativeConfig followed by Validate when T implements Validator.
func ValidatedConfig[T any](path string, attributes AttributeMap) (T, error) {
	out, err := NativeConfig[T](attributes)
	if err != nil {
		return out, NewConfigValidationError(path, err)
	}
	if v, ok := any(out).(Validator); ok {
		if err := v.Validate(path); err != nil {
			return out, err
		}
	}
	return out, nil
}
