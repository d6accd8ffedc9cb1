package event

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidEvent is returned by ErrorEvent.Validate.
var ErrInvalidEvent = errors.New("invalid error event")

// Frame is one entry of a stack trace, innermost first.
type Frame struct {
	Module   string `json:"module"`
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// String renders the frame as "module.function (file:line)", leaving out empty parts.
func (f Frame) String() string {
	var b strings.Builder

	switch {
	case f.Module != "" && f.Function != "":
		b.WriteString(f.Module + "." + f.Function)
	case f.Function != "":
		b.WriteString(f.Function)
	default:
		b.WriteString(f.Module)
	}

	if f.File != "" {
		loc := f.File
		if f.Line > 0 {
			loc += ":" + strconv.Itoa(f.Line)
		}

		if b.Len() > 0 {
			b.WriteString(" (" + loc + ")")
		} else {
			b.WriteString(loc)
		}
	}

	return b.String()
}

// ErrorEvent is a single notification from the error tracker about a new error class or a new occurrence of one.
type ErrorEvent struct {
	Kind Kind `json:"kind"`

	// ErrorID is the stable identity of the error class. Throttling is keyed by it.
	ErrorID string `json:"error_id"`

	// OccurrenceID identifies this specific instance. Required for KindNewOccurrence.
	OccurrenceID string `json:"occurrence_id,omitempty"`

	// Reason is the human-readable error message. It is not length limited.
	Reason string `json:"reason"`

	// StackFrames may be empty.
	StackFrames []Frame `json:"stack_frames,omitempty"`

	// Context is free-form request or view metadata, e.g. {"request.path": "/orders"}.
	Context map[string]string `json:"context,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the fields a notification cannot do without.
// Missing optional data such as the stack trace or the error id is not an error.
func (e *ErrorEvent) Validate() error {
	switch e.Kind {
	case KindNewError:
	case KindNewOccurrence:
		if e.OccurrenceID == "" {
			return errors.Wrap(ErrInvalidEvent, "occurrence id missing for new-occurrence event")
		}
	default:
		return errors.Wrapf(ErrInvalidEvent, "unsupported kind %q", e.Kind)
	}

	return nil
}

// FirstFrame returns the innermost stack frame, if any.
func (e *ErrorEvent) FirstFrame() (Frame, bool) {
	if len(e.StackFrames) == 0 {
		return Frame{}, false
	}

	return e.StackFrames[0], true
}
