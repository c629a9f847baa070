package union

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Marshal marshals the provided union type into a JSON byte array. The active
// member's fields are flattened into the container's object along with the tag
// field naming the member.
func Marshal(v interface{}) ([]byte, error) {
	value := reflect.ValueOf(v)
	if value.Kind() == reflect.Ptr {
		value = value.Elem()
	}
	t := value.Type()

	unionTypes, err := parseUnionTypes(t)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})

	for key, members := range unionTypes {
		for name, member := range members {
			fieldVal := value.Field(member.index)
			if fieldVal.IsNil() {
				continue
			}
			nested, err := json.Marshal(fieldVal.Interface())
			if err != nil {
				return nil, err
			}
			memberFields := make(map[string]interface{})
			if err := json.Unmarshal(nested, &memberFields); err != nil {
				return nil, err
			}
			for k, v := range memberFields {
				fields[k] = v
			}
			fields[key] = name
		}
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if _, ok := field.Tag.Lookup(unionTag); ok {
			continue
		}

		name := field.Name
		var opts []string
		if jsonTagValue, ok := field.Tag.Lookup("json"); ok {
			parsed := strings.Split(jsonTagValue, ",")
			name = parsed[0]
			opts = parsed[1:]
		}
		if name == "-" {
			continue
		}

		omitEmpty := false
		for _, opt := range opts {
			if opt != "omitempty" {
				return nil, errors.Errorf(
					"json tag features not supported in union types: %s", opt)
			}
			omitEmpty = true
		}

		fieldVal := value.Field(i)
		if omitEmpty && fieldVal.IsZero() {
			continue
		}
		fields[name] = fieldVal.Interface()
	}

	return json.Marshal(fields)
}
