// Package output writes folder operation reports as JSONL.
//
// Every line is a typed envelope whose data field holds the payload, so a
// consumer can parse each line on its own.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/nimbusdir/pkg/provider"
)

// Record types, versioned as nimbusdir.<type>.v<version>.
const (
	// TypeStep identifies per-entry primitive results.
	TypeStep = "nimbusdir.step.v1"

	// TypeError identifies listing and step failures.
	TypeError = "nimbusdir.error.v1"

	// TypeSummary identifies the final record of an operation.
	TypeSummary = "nimbusdir.summary.v1"
)

// Record is the envelope for every JSONL line.
type Record struct {
	// Type identifies the payload (e.g., "nimbusdir.step.v1").
	Type string `json:"type"`

	// TS is when the record was written.
	TS time.Time `json:"ts"`

	// OperationID correlates the records of one folder operation.
	OperationID string `json:"operation_id"`

	// Provider identifies the store (e.g., "s3").
	Provider string `json:"provider"`

	Data json.RawMessage `json:"data"`
}

// StepRecord is the payload for one attempted or skipped primitive call.
type StepRecord struct {
	Action      string `json:"action"`
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
	Folder      bool   `json:"folder,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
	Success     bool   `json:"success"`

	// Kind is the ErrorKind name; empty on success and when skipped.
	Kind string `json:"kind,omitempty"`
}

// ErrorRecord is the payload for a failed listing or step.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is the transport or service error text.
	Message string `json:"message"`

	// Key is the object key related to this error, if applicable.
	Key string `json:"key,omitempty"`

	// Prefix is the prefix being listed when the error occurred.
	Prefix string `json:"prefix,omitempty"`

	// Payload is the raw store response, when one was returned.
	Payload string `json:"payload,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeAccessDenied = "ACCESS_DENIED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidName  = "INVALID_NAME"
	ErrCodeNetwork      = "NETWORK"
	ErrCodeService      = "SERVICE"
	ErrCodeInternal     = "INTERNAL"
)

// ErrorCode maps an ErrorKind to an ErrorRecord code.
func ErrorCode(kind provider.ErrorKind) string {
	switch kind {
	case provider.CredentialsError:
		return ErrCodeAccessDenied
	case provider.BucketNotFoundError, provider.ObjectNotFoundError:
		return ErrCodeNotFound
	case provider.BucketNameInvalidError, provider.ObjectNameInvalidError:
		return ErrCodeInvalidName
	case provider.NetworkError:
		return ErrCodeNetwork
	case provider.GenericServiceError:
		return ErrCodeService
	default:
		return ErrCodeInternal
	}
}

// SummaryRecord is the payload for the final record of an operation.
type SummaryRecord struct {
	Op          string `json:"op"`
	Bucket      string `json:"bucket"`
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
	Noop        bool   `json:"noop,omitempty"`
	Succeeded   bool   `json:"succeeded"`

	Pages     int  `json:"pages"`
	Truncated bool `json:"truncated,omitempty"`
	Steps     int  `json:"steps"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`

	// FailedEntries lists the source keys of failed steps.
	FailedEntries []string `json:"failed_entries,omitempty"`

	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
