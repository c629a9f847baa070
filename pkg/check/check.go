// Package check implements assertion-style validation helpers. Helpers return an
// error describing the failed condition rather than panicking, so callers can
// collect every configuration problem in one pass.
package check

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// check returns nil if the condition holds and an error built from the caller's
// message and the internal description otherwise.
func check(condition bool, msgAndArgs []interface{}, internalMsgAndArgs ...interface{}) error {
	if condition {
		return nil
	}
	message := messageFromMsgAndArgs(false, msgAndArgs...)
	internalMessage := messageFromMsgAndArgs(true, internalMsgAndArgs...)
	if len(message) == 0 {
		return errors.New(internalMessage)
	}
	return errors.Errorf("%s: %s", message, internalMessage)
}

// True checks whether the condition is true.
func True(condition bool, msgAndArgs ...interface{}) error {
	return check(condition, msgAndArgs, "expected true, got false")
}

// Equal checks whether the actual value is equal to the expected value.
func Equal(actual, expected interface{}, msgAndArgs ...interface{}) error {
	return check(reflect.DeepEqual(actual, expected), msgAndArgs,
		"%s does not equal %s", actual, expected)
}

// In checks whether the actual value is in the expected list.
func In(actual string, expected []string, msgAndArgs ...interface{}) error {
	for _, value := range expected {
		if actual == value {
			return nil
		}
	}
	return check(false, msgAndArgs, "%s not in {%s}", actual, strings.Join(expected, ", "))
}

// NotEmpty checks whether the actual value is non-empty.
func NotEmpty(actual string, msgAndArgs ...interface{}) error {
	return check(len(actual) > 0, msgAndArgs, "%s is empty", actual)
}

// GreaterThan checks whether the actual value is greater than the expected value.
func GreaterThan[T ordered](actual, expected T, msgAndArgs ...interface{}) error {
	return check(actual > expected, msgAndArgs,
		"%v is not greater than %v", actual, expected)
}

// GreaterThanOrEqualTo checks whether the actual value is greater than or equal to
// the expected value.
func GreaterThanOrEqualTo[T ordered](actual, expected T, msgAndArgs ...interface{}) error {
	return check(actual >= expected, msgAndArgs,
		"%v is not greater than or equal to %v", actual, expected)
}

// LessThanOrEqualTo checks whether the actual value is less than or equal to the
// expected value.
func LessThanOrEqualTo[T ordered](actual, expected T, msgAndArgs ...interface{}) error {
	return check(actual <= expected, msgAndArgs,
		"%v is not less than or equal to %v", actual, expected)
}

// BetweenInclusive checks whether the actual value is in the inclusive range
// [lower, upper].
func BetweenInclusive[T ordered](actual, lower, upper T, msgAndArgs ...interface{}) error {
	return check(lower <= actual && actual <= upper, msgAndArgs,
		"%v is not between %v and %v", actual, lower, upper)
}

type ordered interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64 | ~string
}

func isInterfaceNil(val interface{}) bool {
	return val == nil ||
		(reflect.ValueOf(val).Kind() == reflect.Ptr &&
			reflect.ValueOf(val).IsNil())
}

func internalFormat(original, indirect interface{}) string {
	if reflect.ValueOf(indirect).Kind() == reflect.Ptr && !isInterfaceNil(indirect) {
		return internalFormat(original, reflect.Indirect(reflect.ValueOf(indirect)).Interface())
	}
	if reflect.TypeOf(original) == reflect.TypeOf(indirect) {
		return fmt.Sprintf("%+v", original)
	}
	return fmt.Sprintf("%T(%+v)", original, indirect)
}

func format(i interface{}) string {
	return internalFormat(i, i)
}

func messageFromMsgAndArgs(formatPointers bool, msgAndArgs ...interface{}) string {
	switch {
	case len(msgAndArgs) == 1:
		switch msg := msgAndArgs[0].(type) {
		case string:
			return msg
		default:
			return fmt.Sprintf("%+v", format(msg))
		}
	case len(msgAndArgs) > 1:
		args := make([]interface{}, 0, len(msgAndArgs)-1)
		for _, arg := range msgAndArgs[1:] {
			if formatPointers {
				args = append(args, format(arg))
			} else {
				args = append(args, arg)
			}
		}
		return fmt.Sprintf(msgAndArgs[0].(string), args...)
	default:
		return ""
	}
}
