package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records for folder operations.
//
// Implementations must be safe for concurrent use. Each Write* method emits a
// complete record as a single line of JSON followed by a newline.
type Writer interface {
	// WriteStep emits a step record.
	WriteStep(ctx context.Context, operationID string, step *StepRecord) error

	// WriteError emits an error record.
	WriteError(ctx context.Context, operationID string, err *ErrorRecord) error

	// WriteSummary emits a summary record.
	WriteSummary(ctx context.Context, operationID string, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// Writes are serialized so lines never interleave.
type JSONLWriter struct {
	w        io.Writer
	provider string
	mu       sync.Mutex
	closed   bool
}

// NewJSONLWriter creates a JSONL writer over w. provider labels every record.
func NewJSONLWriter(w io.Writer, provider string) *JSONLWriter {
	return &JSONLWriter{
		w:        w,
		provider: provider,
	}
}

// WriteStep emits a step record.
func (jw *JSONLWriter) WriteStep(ctx context.Context, operationID string, step *StepRecord) error {
	return jw.writeRecord(ctx, TypeStep, operationID, step)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, operationID string, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, operationID, err)
}

// WriteSummary emits a summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, operationID string, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, operationID, sum)
}

// Close marks the writer as closed. The underlying writer is not closed.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType, operationID string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{
		Type:        recordType,
		TS:          time.Now().UTC(),
		OperationID: operationID,
		Provider:    jw.provider,
		Data:        dataBytes,
	}
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// writeAll writes all of p, looping over short writes.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)
