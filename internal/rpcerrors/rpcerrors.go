// Package rpcerrors implements the five-variant error taxonomy used to
// classify every RPC failure for metrics and to drive retry/chunk-split
// decisions.
package rpcerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags an Error with one of the five taxonomy variants.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindConnection Kind = "connection"
	KindProtocol   Kind = "protocol"
	KindValidation Kind = "validation"
	KindUnknown    Kind = "unknown"
)

// Error is the tagged RPC error carried across the RPC boundary.
type Error struct {
	Kind         Kind
	Message      string
	Blockchain   string
	RPCURL       string
	Operation    string
	Attempt      int
	MaxAttempts  int
	RPCErrorCode *int
	RPCErrorMsg  string
	Context      map[string]any
	cause        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	parts := make([]string, 0, 6)
	if e.Blockchain != "" {
		parts = append(parts, fmt.Sprintf("blockchain=%s", e.Blockchain))
	}
	if e.RPCURL != "" {
		parts = append(parts, fmt.Sprintf("rpc_url=%s", e.RPCURL))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("operation=%s", e.Operation))
	}
	if e.Attempt != 0 {
		parts = append(parts, fmt.Sprintf("attempt=%d", e.Attempt))
	}
	if e.MaxAttempts != 0 {
		parts = append(parts, fmt.Sprintf("max_attempts=%d", e.MaxAttempts))
	}
	for k, v := range e.Context {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	if len(parts) > 0 {
		b.WriteString(" (context: ")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a tagged Error wrapping cause.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithOperation sets the operation name used as a metric label.
func (e *Error) WithOperation(op string) *Error { e.Operation = op; return e }

// WithBlockchain sets the blockchain name and RPC URL context.
func (e *Error) WithBlockchain(name, rpcURL string) *Error {
	e.Blockchain = name
	e.RPCURL = rpcURL
	return e
}

// WithAttempt sets the attempt counters.
func (e *Error) WithAttempt(attempt, max int) *Error {
	e.Attempt = attempt
	e.MaxAttempts = max
	return e
}

// AsTagged reports whether err is (or wraps) a tagged *Error, returning it.
func AsTagged(err error) (*Error, bool) {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged, true
	}
	return nil, false
}

// Classify maps an arbitrary error into the taxonomy, reusing an existing
// tag if err already carries one. Classification is string- and
// type-based and therefore best-effort by design.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	if tagged, ok := AsTagged(err); ok {
		return tagged.Kind
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "connection"),
		strings.Contains(msg, "network unreachable"),
		strings.Contains(msg, "name resolution"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection aborted"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"):
		return KindConnection
	case strings.Contains(msg, "rpc"), isRPCError(err):
		return KindProtocol
	case isValidationError(err):
		return KindValidation
	default:
		return KindUnknown
	}
}

// rpcErrorProvider is satisfied by go-ethereum's rpc.Error and similar
// JSON-RPC error objects that carry a numeric error code.
type rpcErrorProvider interface {
	ErrorCode() int
}

func isRPCError(err error) bool {
	var rpcErr rpcErrorProvider
	return errors.As(err, &rpcErr)
}

// validationError marks local data-shape problems (the Go analog of
// Python's ValueError/TypeError/AttributeError/KeyError).
type validationError interface {
	IsValidation() bool
}

func isValidationError(err error) bool {
	var v validationError
	return errors.As(err, &v)
}

// Wrap classifies err (unless already tagged) and wraps it into the
// matching tagged variant, preserving the original as cause.
func Wrap(err error, operation, description string) *Error {
	if tagged, ok := AsTagged(err); ok {
		return tagged
	}

	kind := Classify(err)
	message := description
	if message == "" {
		message = err.Error()
	}

	wrapped := New(kind, message, err).WithOperation(operation)

	var rpcErr rpcErrorProvider
	if errors.As(err, &rpcErr) {
		code := rpcErr.ErrorCode()
		wrapped.RPCErrorCode = &code
		wrapped.RPCErrorMsg = err.Error()
	}

	return wrapped
}

// IsResponseTooBig reports whether a Protocol error's message indicates the
// RPC endpoint rejected the request because the response would be too
// large — the signal the transfer-count chunker uses to shrink and retry.
func IsResponseTooBig(err error) bool {
	tagged, ok := AsTagged(err)
	if !ok || tagged.Kind != KindProtocol {
		return false
	}

	candidates := []string{tagged.Message, tagged.RPCErrorMsg}
	for _, c := range candidates {
		lower := strings.ToLower(c)
		if strings.Contains(lower, "too big") || strings.Contains(lower, "exceeded max limit") {
			return true
		}
	}
	return false
}
