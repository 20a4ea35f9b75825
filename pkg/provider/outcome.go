package provider

import (
	"bytes"
	"fmt"
)

// Call identifies a single primitive invocation.
//
// Providers build Outcomes from a Call so every result carries the
// operation, bucket and key it belongs to.
type Call struct {
	Provider ProviderType
	Op       string
	Bucket   string
	Key      string
}

// Success returns a successful Outcome carrying a copy of payload.
func (c Call) Success(payload []byte) Outcome {
	return Outcome{call: c, set: true, kind: NoError, payload: bytes.Clone(payload)}
}

// ServiceFailure returns an Outcome for an error reported by the store.
// NoError is promoted to UnknownError; a failure always has a failing kind.
func (c Call) ServiceFailure(kind ErrorKind, message string, payload []byte) Outcome {
	if kind == NoError {
		kind = UnknownError
	}
	return Outcome{call: c, set: true, kind: kind, message: message, payload: bytes.Clone(payload)}
}

// TransportFailure returns an Outcome for a request that produced no usable
// service reply. The transport error is kept verbatim.
func (c Call) TransportFailure(err error, payload []byte) Outcome {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Outcome{call: c, set: true, kind: NetworkError, message: msg, transport: err, payload: bytes.Clone(payload)}
}

// Outcome is the uniform result of a store primitive.
//
// Outcome is immutable. The zero value reports
// InternalReplyInitializationError, matching a reply that was never filled in.
type Outcome struct {
	call      Call
	set       bool
	kind      ErrorKind
	message   string
	transport error
	payload   []byte
}

// IsSuccess reports whether neither a transport nor a service error occurred.
func (o Outcome) IsSuccess() bool {
	return o.set && o.transport == nil && o.kind == NoError
}

// Kind returns the service-level classification.
func (o Outcome) Kind() ErrorKind {
	if !o.set {
		return InternalReplyInitializationError
	}
	return o.kind
}

// Call returns the invocation this Outcome belongs to.
func (o Outcome) Call() Call { return o.call }

// WithCall returns the same result reported against c. It lets a result
// shared by several callers name each caller's own invocation.
func (o Outcome) WithCall(c Call) Outcome {
	o.call = c
	return o
}

// TransportError returns the transport failure, if any.
func (o Outcome) TransportError() error { return o.transport }

// ServiceError returns the service error message, if any.
func (o Outcome) ServiceError() string {
	if !o.set {
		return "reply not initialized"
	}
	return o.message
}

// AnyErrorString returns the transport error text, else the service error
// text, else the empty string.
func (o Outcome) AnyErrorString() string {
	if o.transport != nil {
		return o.transport.Error()
	}
	if o.Kind() != NoError {
		if msg := o.ServiceError(); msg != "" {
			return msg
		}
		return o.Kind().String()
	}
	return ""
}

// Payload returns a copy of the raw response body. It is retained on error.
func (o Outcome) Payload() []byte {
	return bytes.Clone(o.payload)
}

// Err converts a failed Outcome to an error; nil on success.
//
// The returned *ProviderError matches the kind's sentinel with errors.Is, and
// the transport error as well when there is one.
func (o Outcome) Err() error {
	if o.IsSuccess() {
		return nil
	}
	kind := o.Kind()
	var inner error
	switch {
	case o.transport != nil:
		inner = fmt.Errorf("%w: %w", kind.Sentinel(), o.transport)
	case o.ServiceError() != "":
		inner = fmt.Errorf("%w: %s", kind.Sentinel(), o.ServiceError())
	default:
		inner = kind.Sentinel()
	}
	return &ProviderError{
		Op:       o.call.Op,
		Provider: o.call.Provider,
		Bucket:   o.call.Bucket,
		Key:      o.call.Key,
		Kind:     kind,
		Err:      inner,
	}
}

// String renders a one-line summary for logs.
func (o Outcome) String() string {
	if o.IsSuccess() {
		return fmt.Sprintf("%s %s ok", o.call.Op, o.target())
	}
	return fmt.Sprintf("%s %s failed: %s: %s", o.call.Op, o.target(), o.Kind(), o.AnyErrorString())
}

func (o Outcome) target() string {
	if o.call.Key == "" {
		return o.call.Bucket
	}
	return o.call.Bucket + "/" + o.call.Key
}

// Reply is an Outcome carrying a typed value.
type Reply[T any] struct {
	Outcome
	value T
}

// NewReply pairs an Outcome with its value.
func NewReply[T any](o Outcome, value T) Reply[T] {
	return Reply[T]{Outcome: o, value: value}
}

// Value returns the reply value. It is the zero value on failure.
func (r Reply[T]) Value() T { return r.value }
