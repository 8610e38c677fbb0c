// Package kinds defines the closed set of error kinds the runner can
// report, per the propagation policy in the design notes: executors
// classify every failure into one of these before it crosses a step
// boundary.
package kinds

import "errors"

// Kind names a failure condition, not a Go type. Executors wrap the
// underlying error with one of these via Wrap so callers can classify
// a failure with errors.Is without inspecting message text.
type Kind string

// Error lets a bare Kind act as an errors.Is target: errors.Is(err, Timeout).
func (k Kind) Error() string { return string(k) }

const (
	Parse           Kind = "parse"
	Validation      Kind = "validation"
	Connection      Kind = "connection"
	ElementNotFound Kind = "element_not_found"
	NotEditable     Kind = "not_editable"
	NotActionable   Kind = "not_actionable"
	Stale           Kind = "stale"
	Timeout         Kind = "timeout"
	EvalError       Kind = "eval_error"
	NavigationError Kind = "navigation_error"
	Execution       Kind = "execution"
)

// kindError pairs a Kind with the underlying cause so errors.Is(err, Timeout)
// and errors.Unwrap both work.
type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return string(e.kind)
	}
	return string(e.kind) + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() error { return e.cause }

// Is lets errors.Is(err, SomeKind) match: sentinel Kind values compare
// equal to any kindError carrying that kind.
func (e *kindError) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.kind == k
	}
	return false
}

// Wrap attaches kind to cause. A nil cause still produces a classifiable
// error carrying only the kind (useful for sentinel-style checks).
func Wrap(kind Kind, cause error) error {
	return &kindError{kind: kind, cause: cause}
}

// Of extracts the Kind of err, or Execution if err doesn't carry one.
func Of(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Execution
}

// Is reports whether err was produced by Wrap with the given kind,
// looking through any wrapping chain.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}
