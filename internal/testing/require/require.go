// Package require provides a tiny subset of testify/require's API without taking a test-only dependency on
// that module. Every function calls t.Fatal (never t.Error), so a failed assertion stops the current test
// immediately, exactly as the testify function of the same name does.
package require

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"syscall"
)

// TestingT is satisfied by *testing.T; it exists so this package doesn't import "testing" into its API.
type TestingT interface {
	Fatal(args ...interface{})
}

// CapturePanic runs fn and converts a panic, if any, into an error. Returns nil if fn did not panic.
func CapturePanic(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			default:
				err = fmt.Errorf("%v", v)
			}
		}
	}()
	fn()
	return
}

// containsVerb reports whether format looks like a printf format string (contains a verb not escaped as
// "%%"), in which case the remaining args are substituted into it rather than appended as space-separated
// values — this lets callers write either Equal(t, a, b, "context") or Equal(t, a, b, "pay me %d", 5).
func containsVerb(format string) bool {
	for i := 0; i < len(format)-1; i++ {
		if format[i] == '%' && format[i+1] != '%' {
			return true
		}
	}
	return false
}

// Contains fails unless substr is found in s.
func Contains(t TestingT, s, substr string, formatWithArgs ...interface{}) {
	if !containsString(s, substr) {
		msg := fmt.Sprintf("expected %q to contain %q", s, substr)
		failWithArgs(t, msg, formatWithArgs)
	}
}

func containsString(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// Equal fails unless expected and actual are deeply equal. actual may be untyped nil, in which case it is
// compared against expected's zero-ness.
func Equal(t TestingT, expected, actual interface{}, formatWithArgs ...interface{}) {
	if actual == nil {
		if expected == nil {
			return
		}
		failWithArgs(t, fmt.Sprintf("expected %#v, but was nil", expected), formatWithArgs)
		return
	}
	et, at := reflect.TypeOf(expected), reflect.TypeOf(actual)
	if et != at {
		if _, ok := expected.(string); ok {
			failWithArgs(t, fmt.Sprintf("expected %q, but was %s(%v)", expected, at, actual), formatWithArgs)
			return
		}
		failWithArgs(t, fmt.Sprintf("expected %s(%v), but was %s(%v)", et, expected, at, actual), formatWithArgs)
		return
	}
	if reflect.DeepEqual(expected, actual) {
		return
	}
	switch expected.(type) {
	case string:
		failWithArgs(t, fmt.Sprintf("expected %#v, but was %#v", expected, actual), formatWithArgs)
	case int, int32, int64, uint, uint32, uint64, float32, float64, bool:
		failWithArgs(t, fmt.Sprintf("expected %v, but was %v", expected, actual), formatWithArgs)
	default:
		diff := fmt.Sprintf("expected:\n\t%#v\nwas:\n\t%#v\n", expected, actual)
		fail(t, "unexpected value", diff, formatWithArgs...)
	}
}

// NotEqual fails if expected and actual are deeply equal.
func NotEqual(t TestingT, expected, actual interface{}, formatWithArgs ...interface{}) {
	if reflect.DeepEqual(expected, actual) {
		failWithArgs(t, fmt.Sprintf("expected to not equal %#v", expected), formatWithArgs)
	}
}

// Error fails if err is nil.
func Error(t TestingT, err error, formatWithArgs ...interface{}) {
	if err == nil {
		failWithArgs(t, "expected an error, but was nil", formatWithArgs)
	}
}

// EqualError fails unless err is non-nil and err.Error() equals expected.
func EqualError(t TestingT, err error, expected string, formatWithArgs ...interface{}) {
	if err == nil {
		failWithArgs(t, "expected an error, but was nil", formatWithArgs)
		return
	}
	if err.Error() != expected {
		failWithArgs(t, fmt.Sprintf("expected error %q, but was %q", expected, err.Error()), formatWithArgs)
	}
}

// ErrorIs fails unless errors.Is(err, target).
func ErrorIs(t TestingT, err, target error, formatWithArgs ...interface{}) {
	if !errors.Is(err, target) {
		failWithArgs(t, fmt.Sprintf("expected errors.Is(%v, %v), but it wasn't", err, target), formatWithArgs)
	}
}

// NoError fails unless err is nil.
func NoError(t TestingT, err error, formatWithArgs ...interface{}) {
	if err != nil {
		failWithArgs(t, fmt.Sprintf("expected no error, but was %v", err), formatWithArgs)
	}
}

// Nil fails unless v is nil (or a nil pointer/interface/slice/map).
func Nil(t TestingT, v interface{}, formatWithArgs ...interface{}) {
	if !isNil(v) {
		failWithArgs(t, fmt.Sprintf("expected nil, but was %v", v), formatWithArgs)
	}
}

// NotNil fails if v is nil.
func NotNil(t TestingT, v interface{}, formatWithArgs ...interface{}) {
	if isNil(v) {
		failWithArgs(t, "expected to not be nil", formatWithArgs)
	}
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}

// True fails unless v is true.
func True(t TestingT, v bool, formatWithArgs ...interface{}) {
	if !v {
		failWithArgs(t, "expected true, but was false", formatWithArgs)
	}
}

// False fails unless v is false.
func False(t TestingT, v bool, formatWithArgs ...interface{}) {
	if v {
		failWithArgs(t, "expected false, but was true", formatWithArgs)
	}
}

// Same fails unless expected and actual point to the same object.
func Same(t TestingT, expected, actual interface{}, formatWithArgs ...interface{}) {
	ev, av := reflect.ValueOf(expected), reflect.ValueOf(actual)
	if ev.Type() != av.Type() || ev.Pointer() != av.Pointer() {
		failWithArgs(t, fmt.Sprintf("expected %v to point to the same object as %v", actual, expected), formatWithArgs)
	}
}

// NotSame fails if expected and actual point to the same object.
func NotSame(t TestingT, expected, actual interface{}, formatWithArgs ...interface{}) {
	ev, av := reflect.ValueOf(expected), reflect.ValueOf(actual)
	if ev.Type() == av.Type() && ev.Pointer() == av.Pointer() {
		failWithArgs(t, fmt.Sprintf("expected %v to point to a different object", expected), formatWithArgs)
	}
}

// Zero fails unless v is the zero value for its type.
func Zero(t TestingT, v interface{}, formatWithArgs ...interface{}) {
	rv := reflect.ValueOf(v)
	if !rv.IsZero() {
		failWithArgs(t, fmt.Sprintf("expected zero, but was %v", v), formatWithArgs)
	}
}

// EqualErrno fails unless actual is a syscall.Errno equal to expected.
func EqualErrno(t TestingT, expected syscall.Errno, actual error, formatWithArgs ...interface{}) {
	if actual == nil {
		failWithArgs(t, "expected a syscall.Errno, but was nil", formatWithArgs)
		return
	}
	actualErrno, ok := actual.(syscall.Errno)
	if !ok {
		failWithArgs(t, fmt.Sprintf("expected %v to be a syscall.Errno", actual), formatWithArgs)
		return
	}
	if expected != actualErrno {
		msg := fmt.Sprintf("expected Errno %#x(%s), but was %#x(%s)", uintptr(expected), expected, uintptr(actualErrno), actualErrno)
		failWithArgs(t, msg, formatWithArgs)
	}
}

func failWithArgs(t TestingT, msg string, formatWithArgs []interface{}) {
	fail(t, msg, "", formatWithArgs...)
}

// fail calls t.Fatal with m1, followed by ": " and formatWithArgs when there are any, then m2 on the next line
// when m2 is not empty.
func fail(t TestingT, m1, m2 string, formatWithArgs ...interface{}) {
	msg := m1
	if len(formatWithArgs) > 0 {
		format, _ := formatWithArgs[0].(string)
		rest := formatWithArgs[1:]
		var suffix string
		if containsVerb(format) {
			suffix = fmt.Sprintf(format, rest...)
		} else {
			parts := make([]string, len(formatWithArgs))
			for i, a := range formatWithArgs {
				parts[i] = fmt.Sprint(a)
			}
			suffix = strings.Join(parts, " ")
		}
		msg += ": " + suffix
	}
	if m2 != "" {
		msg += "\n" + m2
	}
	t.Fatal(msg)
}
