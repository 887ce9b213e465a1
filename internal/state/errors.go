package state

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bryanchriswhite/winsync/internal/driver"
)

var (
	// ErrSourceInvalid reports that the window backing a proxy is gone. The
	// window has been (or is being) removed from the registry.
	ErrSourceInvalid = errors.New("state: window is no longer valid")

	// ErrMissingAttributes is matched by MissingAttributesError.
	ErrMissingAttributes = errors.New("state: required attributes missing")

	// ErrClosed is returned when the tracker stopped before an operation's
	// result could be applied.
	ErrClosed = errors.New("state: tracker stopped")

	// ErrStreamClosed is returned by Run when the driver ends the
	// notification stream while the run context is still live.
	ErrStreamClosed = errors.New("state: notification stream closed")
)

// MissingAttributesError is returned when the batched creation read did not
// return every required attribute. The window is never registered.
type MissingAttributesError struct {
	Handle  driver.Handle
	Missing []driver.Attribute
	Got     []driver.Attribute
}

func (e *MissingAttributesError) Error() string {
	return fmt.Sprintf("window %s: missing required attributes [%s] (got [%s])",
		e.Handle, joinAttrs(e.Missing), joinAttrs(e.Got))
}

func (e *MissingAttributesError) Unwrap() error { return ErrMissingAttributes }

func joinAttrs(attrs []driver.Attribute) string {
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}

// ErrorPolicy decides how driver errors that are neither "window gone" nor
// transient are handled.
type ErrorPolicy string

const (
	// PolicyReport returns the error to the caller and keeps tracking.
	PolicyReport ErrorPolicy = "report"
	// PolicyInvalidate treats the error as unrecoverable for that window.
	PolicyInvalidate ErrorPolicy = "invalidate"
	// PolicyPanic fails fast. Meant for debugging driver integrations.
	PolicyPanic ErrorPolicy = "panic"
)

// ParseErrorPolicy validates a policy name. The empty string selects
// PolicyReport.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch p := ErrorPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyReport, nil
	case PolicyReport, PolicyInvalidate, PolicyPanic:
		return p, nil
	}
	return "", fmt.Errorf("unknown error policy %q (use: report, invalidate, panic)", s)
}

func sourceInvalid(w *Window, cause error) error {
	if cause == nil {
		return fmt.Errorf("window %s: %w", w.handle, ErrSourceInvalid)
	}
	return fmt.Errorf("window %s: %w: %w", w.handle, ErrSourceInvalid, cause)
}
