// Package union implements marshaling and unmarshaling of tagged unions in JSON.
// A union container is a struct whose members are pointer fields carrying a
// `union:"key,value"` tag; at most one member per key is non-nil, the member's
// fields are flattened into the container's JSON object, and the key field (for
// example "type") names which member is present.
package union

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

const unionTag = "union"

type unionField struct {
	index int
	field reflect.StructField
}

// parseUnionStructTag parses the "union" struct tag. The format of the struct tag is "key,value"
// where key is the common union type name for all the union type values and value is the name of
// the field's union type.
func parseUnionStructTag(tagValue string) (string, string, error) {
	switch parsed := strings.Split(tagValue, ","); {
	case len(parsed) == 2:
		return parsed[0], parsed[1], nil
	default:
		return "", "", errors.Errorf("unexpected union tag format: %s", tagValue)
	}
}

// parseUnionTypes inspects the struct type and groups its union-tagged fields by
// tag key, mapping each tag value to the field holding that member.
func parseUnionTypes(t reflect.Type) (map[string]map[string]unionField, error) {
	unionTypes := make(map[string]map[string]unionField)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tagValue, ok := field.Tag.Lookup(unionTag)
		if !ok {
			continue
		}

		key, value, err := parseUnionStructTag(tagValue)
		if err != nil {
			return nil, err
		}

		if field.Type.Kind() != reflect.Ptr || field.Type.Elem().Kind() != reflect.Struct {
			return nil, errors.Errorf(
				"union field %s must be a pointer to a struct", field.Name)
		}

		fields, ok := unionTypes[key]
		if !ok {
			fields = make(map[string]unionField)
			unionTypes[key] = fields
		}
		if _, ok := fields[value]; ok {
			return nil, errors.Errorf("duplicate union value for %s: %s", key, value)
		}
		fields[value] = unionField{index: i, field: field}
	}
	return unionTypes, nil
}

// getTagValue returns the name of the union type (keyed by the tag field) that is defined in the
// data bytes. If no key is defined, the second result returns false. If input data is not a JSON
// object or the tag value is not a string, an error is returned.
func getTagValue(data []byte, tag string) (string, bool, error) {
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, err
	}

	tagValue, ok := parsed[tag]
	if !ok {
		return "", false, nil
	}

	typed, ok := tagValue.(string)
	if !ok {
		return "", false, errors.Errorf("%s must be a string: got %T", tag, typed)
	}
	return typed, true, nil
}
