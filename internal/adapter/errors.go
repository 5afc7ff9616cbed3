package adapter

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownAdapter         = errors.New("unknown adapter")
	ErrEnvironmentUnsupported = errors.New("environment unsupported")
	ErrInvalidArguments       = errors.New("invalid arguments")
	ErrAdapterInitialization  = errors.New("adapter initialization failed")
	ErrAdapterMethod          = errors.New("adapter method failed")
	ErrDuplicateRegistration  = errors.New("duplicate registration")
)

// ErrorKind identifies which member of the error family an *Error belongs to.
type ErrorKind int

const (
	KindUnknownAdapter ErrorKind = iota + 1
	KindEnvironmentUnsupported
	KindInvalidArguments
	KindAdapterInitialization
	KindAdapterMethod
	KindDuplicateRegistration
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnknownAdapter:
		return "UnknownAdapter"
	case KindEnvironmentUnsupported:
		return "EnvironmentUnsupported"
	case KindInvalidArguments:
		return "InvalidArguments"
	case KindAdapterInitialization:
		return "AdapterInitializationFailed"
	case KindAdapterMethod:
		return "AdapterMethodError"
	case KindDuplicateRegistration:
		return "DuplicateRegistration"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnknownAdapter:
		return ErrUnknownAdapter
	case KindEnvironmentUnsupported:
		return ErrEnvironmentUnsupported
	case KindInvalidArguments:
		return ErrInvalidArguments
	case KindAdapterInitialization:
		return ErrAdapterInitialization
	case KindAdapterMethod:
		return ErrAdapterMethod
	case KindDuplicateRegistration:
		return ErrDuplicateRegistration
	default:
		return nil
	}
}

// Error is the single error family surfaced by the registry, the factory and
// wrapped adapters. Match it with errors.Is against the Err* sentinels or
// with errors.As to read the details.
type Error struct {
	Kind    ErrorKind
	Module  ModuleKind
	Adapter string

	// Method is set for KindAdapterMethod.
	Method string
	// Code is the normalized code resolved from the adapter's error map.
	Code string

	// Violations is set for KindInvalidArguments.
	Violations []Violation
	// Limitations is set for KindEnvironmentUnsupported.
	Limitations []string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.sentinel().Error())
	if e.Module != "" || e.Adapter != "" {
		fmt.Fprintf(&b, " %s/%s", e.Module, e.Adapter)
	}

	switch e.Kind {
	case KindAdapterMethod:
		fmt.Fprintf(&b, ": %s", e.Method)
		if e.Code != "" {
			fmt.Fprintf(&b, " [%s]", e.Code)
		}
	case KindInvalidArguments:
		msgs := make([]string, 0, len(e.Violations))
		for _, v := range e.Violations {
			msgs = append(msgs, v.String())
		}
		fmt.Fprintf(&b, ": %s", strings.Join(msgs, "; "))
	case KindEnvironmentUnsupported:
		if len(e.Limitations) > 0 {
			fmt.Fprintf(&b, " (limitations: %s)", strings.Join(e.Limitations, "; "))
		}
	}

	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the Err* sentinel of e's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Paths returns the offending option paths of an InvalidArguments error.
func (e *Error) Paths() []string {
	paths := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		paths = append(paths, v.Path)
	}
	return paths
}

// KindOf reports the ErrorKind of err, or 0 when err is not part of the family.
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}
