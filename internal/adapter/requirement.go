package adapter

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// ValueType is the runtime category a Requirement expects.
type ValueType string

const (
	TypeAny      ValueType = ""
	TypeString   ValueType = "string"
	TypeNumber   ValueType = "number"
	TypeBoolean  ValueType = "boolean"
	TypeObject   ValueType = "object"
	TypeArray    ValueType = "array"
	TypeFunction ValueType = "function"
)

// optionsRoot is the optional leading path segment naming the options object.
const optionsRoot = "options"

// Requirement is a field level precondition on an adapter's options.
type Requirement struct {
	// Path is a dot separated locator, e.g. "options.privateKey".
	Path string    `yaml:"path" json:"path"`
	Type ValueType `yaml:"type,omitempty" json:"type,omitempty"`
	// Message overrides the generated violation text.
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
	// AllowUndefined lets the value be absent or nil.
	AllowUndefined bool `yaml:"allow_undefined,omitempty" json:"allowUndefined,omitempty"`
}

// ReportMode selects how many violations Validate collects.
type ReportMode int

const (
	ReportAll ReportMode = iota
	ReportFirst
)

// Violation describes one failed Requirement.
type Violation struct {
	Path     string
	Expected ValueType
	Reason   string
	Message  string
}

func (v Violation) String() string {
	if v.Message != "" {
		return fmt.Sprintf("%s: %s", v.Path, v.Message)
	}
	return fmt.Sprintf("%s: %s", v.Path, v.Reason)
}

// ValidationResult is the outcome of checking options against requirements.
type ValidationResult struct {
	Violations []Violation
}

// OK reports whether every requirement passed.
func (r ValidationResult) OK() bool {
	return len(r.Violations) == 0
}

// Paths returns the offending paths in requirement order.
func (r ValidationResult) Paths() []string {
	paths := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		paths = append(paths, v.Path)
	}
	return paths
}

// Validate checks opts against every requirement and reports all violations.
func Validate(opts Options, reqs []Requirement) ValidationResult {
	return ValidateWith(opts, reqs, ReportAll)
}

// ValidateWith checks opts against reqs. It never mutates its inputs and
// never panics.
func ValidateWith(opts Options, reqs []Requirement, mode ReportMode) ValidationResult {
	var result ValidationResult
	for _, req := range reqs {
		v, ok := check(opts, req)
		if ok {
			continue
		}
		result.Violations = append(result.Violations, v)
		if mode == ReportFirst {
			break
		}
	}
	return result
}

func check(opts Options, req Requirement) (Violation, bool) {
	fail := func(reason string) (Violation, bool) {
		return Violation{Path: req.Path, Expected: req.Type, Reason: reason, Message: req.Message}, false
	}

	segments := splitPath(req.Path)
	if len(segments) == 0 {
		return fail("empty path")
	}

	var current any = map[string]any(opts)
	for i, seg := range segments {
		next, found := field(current, seg)
		if !found || next == nil {
			if req.AllowUndefined {
				return Violation{}, true
			}
			if i < len(segments)-1 {
				return fail(fmt.Sprintf("missing %q", strings.Join(segments[:i+1], ".")))
			}
			return fail("required")
		}
		current = next
	}

	if req.Type == TypeAny {
		return Violation{}, true
	}
	if got := typeOf(current); got != req.Type {
		return fail(fmt.Sprintf("expected %s, got %s", req.Type, got))
	}
	return Violation{}, true
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	segments := strings.Split(path, ".")
	if segments[0] == optionsRoot {
		segments = segments[1:]
	}
	for _, s := range segments {
		if s == "" {
			return nil
		}
	}
	return segments
}

// field descends one level into maps and exported struct fields.
func field(container any, name string) (any, bool) {
	switch c := container.(type) {
	case Options:
		v, ok := c[name]
		return v, ok
	case map[string]any:
		v, ok := c[name]
		return v, ok
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(container)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	case reflect.Struct:
		sf, ok := rv.Type().FieldByName(name)
		if !ok || !sf.IsExported() {
			return nil, false
		}
		return rv.FieldByIndex(sf.Index).Interface(), true
	default:
		return nil, false
	}
}

func typeOf(v any) ValueType {
	if _, ok := v.(json.Number); ok {
		return TypeNumber
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "null"
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return TypeString
	case reflect.Bool:
		return TypeBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.Map, reflect.Struct:
		return TypeObject
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Func:
		return TypeFunction
	default:
		return ValueType(rv.Kind().String())
	}
}
