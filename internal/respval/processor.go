// Package respval adapts a decoded resp.RawResult into the caller-visible
// typed value for one in-flight Message (spec.md 4.C). Processors are a
// closed set, modeled as small structs implementing TryProcess rather than
// an open class hierarchy, per spec.md 9 "prefer tagged variants over open
// inheritance."
package respval

import (
	"strconv"
	"strings"

	"github.com/sandia-minimega/redimux/internal/resp"
	"github.com/sandia-minimega/redimux/pkg/rerror"
)

// Outcome is the tagged result of a TryProcess call.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeNeedRedirect
	OutcomeNeedRetry
	OutcomeFailed
)

// RedirectKind distinguishes MOVED (permanent) from ASK (transient)
// redirects.
type RedirectKind int

const (
	RedirectMoved RedirectKind = iota
	RedirectAsk
)

// ErrorKind classifies a non-redirect server error for callers, mirroring
// the taxonomy in spec.md 7.
type ErrorKind int

const (
	ErrGeneric ErrorKind = iota
	ErrCrossSlot
	ErrLoading
	ErrBusy
	ErrNoAuth
	ErrWrongPass
	ErrReadOnly
	ErrMasterDown
	ErrNoScript
	ErrClusterDown
)

// Result is what a Processor produces from one decoded frame.
type Result struct {
	Outcome Outcome

	// OutcomeCompleted
	Value interface{}

	// OutcomeNeedRedirect
	RedirectKind     RedirectKind
	RedirectSlot     int
	RedirectEndpoint string

	// OutcomeFailed / OutcomeNeedRetry
	FailKind      ErrorKind
	ServerMessage string
}

// Processor converts one RawResult into a Result. Implementations must be
// side-effect free and must not retain r.Bytes/r.Children beyond the call,
// since the decoder's buffer backing them may be reused.
type Processor interface {
	TryProcess(r resp.RawResult) Result
}

// classifyError inspects an Error frame for a redirect or a recognized
// retryable prefix, returning nil if the caller should do its own
// type-specific handling (i.e. r is not an Error at all).
func classifyError(r resp.RawResult) *Result {
	if r.Kind != resp.KindError {
		return nil
	}
	msg := r.Str
	fields := strings.Fields(msg)
	prefix := ""
	if len(fields) > 0 {
		prefix = fields[0]
	}

	switch prefix {
	case "MOVED":
		if len(fields) >= 3 {
			slot, _ := strconv.Atoi(fields[1])
			return &Result{Outcome: OutcomeNeedRedirect, RedirectKind: RedirectMoved, RedirectSlot: slot, RedirectEndpoint: fields[2]}
		}
	case "ASK":
		if len(fields) >= 3 {
			slot, _ := strconv.Atoi(fields[1])
			return &Result{Outcome: OutcomeNeedRedirect, RedirectKind: RedirectAsk, RedirectSlot: slot, RedirectEndpoint: fields[2]}
		}
	case "LOADING":
		return &Result{Outcome: OutcomeNeedRetry, FailKind: ErrLoading, ServerMessage: msg}
	case "TRYAGAIN":
		return &Result{Outcome: OutcomeNeedRetry, FailKind: ErrGeneric, ServerMessage: msg}
	case "CLUSTERDOWN":
		return &Result{Outcome: OutcomeNeedRetry, FailKind: ErrClusterDown, ServerMessage: msg}
	case "NOSCRIPT":
		return &Result{Outcome: OutcomeNeedRetry, FailKind: ErrNoScript, ServerMessage: msg}
	case "CROSSSLOT":
		return &Result{Outcome: OutcomeFailed, FailKind: ErrCrossSlot, ServerMessage: msg}
	case "BUSY":
		return &Result{Outcome: OutcomeFailed, FailKind: ErrBusy, ServerMessage: msg}
	case "NOAUTH":
		return &Result{Outcome: OutcomeFailed, FailKind: ErrNoAuth, ServerMessage: msg}
	case "WRONGPASS":
		return &Result{Outcome: OutcomeFailed, FailKind: ErrWrongPass, ServerMessage: msg}
	case "READONLY":
		return &Result{Outcome: OutcomeFailed, FailKind: ErrReadOnly, ServerMessage: msg}
	case "MASTERDOWN":
		return &Result{Outcome: OutcomeFailed, FailKind: ErrMasterDown, ServerMessage: msg}
	}
	return &Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: msg}
}

func completed(v interface{}) Result { return Result{Outcome: OutcomeCompleted, Value: v} }

// rerrorKind maps the local taxonomy onto pkg/rerror's, the one callers of
// the public API actually see.
func (k ErrorKind) rerrorKind() rerror.ErrorKind {
	switch k {
	case ErrCrossSlot:
		return rerror.ErrCrossSlot
	case ErrLoading:
		return rerror.ErrLoading
	case ErrBusy:
		return rerror.ErrBusy
	case ErrNoAuth:
		return rerror.ErrNoAuth
	case ErrWrongPass:
		return rerror.ErrWrongPass
	case ErrReadOnly:
		return rerror.ErrReadOnly
	case ErrMasterDown:
		return rerror.ErrMasterDown
	case ErrNoScript:
		return rerror.ErrNoScript
	case ErrClusterDown:
		return rerror.ErrClusterDown
	default:
		return rerror.ErrGeneric
	}
}

// AsError renders an OutcomeFailed/OutcomeNeedRetry Result as the
// caller-visible *rerror.ServerError, attributing it to endpoint/command for
// the "every failure carries endpoint, command" requirement (spec.md 7).
func (r Result) AsError(endpoint, command string) error {
	return &rerror.ServerError{
		Kind:     r.FailKind.rerrorKind(),
		Endpoint: endpoint,
		Command:  command,
		Message:  r.ServerMessage,
	}
}
