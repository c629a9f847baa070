package union

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Unmarshal unmarshals the provided union type from a JSON byte array. The data's
// tag field selects which union member is populated; fields outside the selected
// member and the container are rejected as unknown.
func Unmarshal(data []byte, v interface{}) error {
	value := reflect.ValueOf(v)
	expectedFields := make(map[string]bool)
	unionTypes, err := parseUnionTypes(value.Type().Elem())
	if err != nil {
		return err
	}

	for key, fields := range unionTypes {
		expectedFields[key] = true
		tagValue, ok, err := getTagValue(data, key)
		if err != nil {
			return err
		} else if !ok {
			continue
		}
		member, ok := fields[tagValue]
		if !ok {
			return errors.Errorf("unexpected %s: %s", key, tagValue)
		}

		if fieldVal := value.Elem().Field(member.index); !fieldVal.IsNil() {
			if err := json.Unmarshal(data, fieldVal.Interface()); err != nil {
				return err
			}
		} else {
			nested := reflect.New(member.field.Type.Elem())
			if err := json.Unmarshal(data, nested.Interface()); err != nil {
				return err
			}
			fieldVal.Set(nested)
		}

		// Clear the members of this union group that were not selected.
		for _, other := range fields {
			if other.index == member.index {
				continue
			}
			value.Elem().Field(other.index).Set(reflect.Zero(other.field.Type))
		}

		for k := range parseFields(member.field.Type.Elem()) {
			expectedFields[k] = true
		}
	}
	for k := range parseFields(value.Type().Elem()) {
		expectedFields[k] = true
	}
	return checkFields(expectedFields, data)
}

func parseFields(elem reflect.Type) map[string]bool {
	fields := make(map[string]bool)
	for i := 0; i < elem.NumField(); i++ {
		field := elem.Field(i)
		switch jsonTagValue, ok := field.Tag.Lookup("json"); {
		case jsonTagValue == "-":
			continue
		case !ok:
			jsonTagValue = field.Name
			fallthrough
		default:
			if strings.Contains(jsonTagValue, ",") {
				fields[strings.Split(jsonTagValue, ",")[0]] = true
			} else {
				fields[jsonTagValue] = true
			}
		}
	}
	return fields
}

func checkFields(fields map[string]bool, bytes []byte) error {
	data := make(map[string]interface{})
	if err := json.Unmarshal(bytes, &data); err != nil {
		return err
	}
	for key := range data {
		if _, ok := fields[key]; !ok {
			return errors.Errorf("json: unknown field %q", key)
		}
	}
	return nil
}
