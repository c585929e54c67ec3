package probe

import (
	"bytes"
	"errors"
	"time"
)

// Reason classifies why a probe failed.
type Reason int

const (
	ReasonNone Reason = iota
	NotFound
	PermissionDenied
	Timeout
	ExecutionError
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "ok"
	case NotFound:
		return "not_found"
	case PermissionDenied:
		return "permission_denied"
	case Timeout:
		return "timeout"
	case ExecutionError:
		return "execution_error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Error is the failure half of a Result.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Reason.String()
	}
	return e.Reason.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf returns the Reason carried by err, or ExecutionError when err is a
// plain error. A nil err yields ReasonNone.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ExecutionError
}

// File is the content of one file read by a FileRead probe.
type File struct {
	Path    string
	Content []byte
}

// RegistryEntry is the set of values read from one registry key.
type RegistryEntry struct {
	Key    string
	Values map[string]string
}

// Result is the outcome of running one Spec. A Result is produced once by an
// executor and then belongs to the plugin invocation that asked for it; it is
// never cached or shared across runs.
//
// Command results keep Stdout, Stderr and ExitCode even when the command
// failed, so plugins and logs can explain the failure.
type Result struct {
	Spec     Spec
	Files    []File
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Entries  []RegistryEntry
	Duration time.Duration
	Err      *Error
}

// Failed builds a failed Result.
func Failed(spec Spec, reason Reason, err error) Result {
	return Result{Spec: spec, Err: &Error{Reason: reason, Err: err}}
}

// OK reports whether the probe succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Reason returns the failure reason, or ReasonNone on success.
func (r Result) Reason() Reason {
	if r.Err == nil {
		return ReasonNone
	}
	return r.Err.Reason
}

// Output returns the primary payload of a successful result: stdout for
// commands, the content of the first file for file reads. It returns nil for
// failed results.
func (r Result) Output() []byte {
	if r.Err != nil {
		return nil
	}
	if len(r.Files) > 0 {
		return r.Files[0].Content
	}
	return r.Stdout
}

// Text is Output as a string with surrounding whitespace trimmed.
func (r Result) Text() string {
	return string(bytes.TrimSpace(r.Output()))
}
