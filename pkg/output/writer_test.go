package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusdir/pkg/provider"
)

func decodeLines(t *testing.T, s string) []Record {
	t.Helper()
	var out []Record
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		var rec Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		out = append(out, rec)
	}
	return out
}

func TestNewJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "s3")

	assert.NotNil(t, w)
	assert.Equal(t, "s3", w.provider)
}

func TestJSONLWriter_WriteStep(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "s3")

	err := w.WriteStep(context.Background(), "op-123", &StepRecord{
		Action:      "copy",
		Source:      "old/x.txt",
		Destination: "new/x.txt",
		Success:     true,
	})
	require.NoError(t, err)

	records := decodeLines(t, buf.String())
	require.Len(t, records, 1)
	assert.Equal(t, TypeStep, records[0].Type)
	assert.Equal(t, "op-123", records[0].OperationID)
	assert.Equal(t, "s3", records[0].Provider)
	assert.False(t, records[0].TS.IsZero())

	var step StepRecord
	require.NoError(t, json.Unmarshal(records[0].Data, &step))
	assert.Equal(t, "old/x.txt", step.Source)
	assert.Equal(t, "new/x.txt", step.Destination)
	assert.True(t, step.Success)
}

func TestJSONLWriter_WriteError(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "s3")

	err := w.WriteError(context.Background(), "op-123", &ErrorRecord{
		Code:    ErrCodeAccessDenied,
		Message: "AccessDenied: Access Denied",
		Key:     "secret/file.txt",
	})
	require.NoError(t, err)

	records := decodeLines(t, buf.String())
	assert.Equal(t, TypeError, records[0].Type)

	var rec ErrorRecord
	require.NoError(t, json.Unmarshal(records[0].Data, &rec))
	assert.Equal(t, ErrCodeAccessDenied, rec.Code)
	assert.Equal(t, "secret/file.txt", rec.Key)
}

func TestJSONLWriter_WriteSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "s3")

	err := w.WriteSummary(context.Background(), "op-123", &SummaryRecord{
		Op:            "RenameFolder",
		Steps:         5,
		Duration:      2 * time.Second,
		DurationHuman: "2s",
	})
	require.NoError(t, err)

	var sum SummaryRecord
	records := decodeLines(t, buf.String())
	require.NoError(t, json.Unmarshal(records[0].Data, &sum))
	assert.Equal(t, 5, sum.Steps)
	assert.Equal(t, 2*time.Second, sum.Duration)
	assert.Equal(t, "2s", sum.DurationHuman)
}

func TestJSONLWriter_NewlineTerminated(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "s3")

	require.NoError(t, w.WriteStep(context.Background(), "a", &StepRecord{Source: "1"}))
	require.NoError(t, w.WriteStep(context.Background(), "a", &StepRecord{Source: "2"}))

	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

func TestJSONLWriter_Close(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "s3")

	require.NoError(t, w.Close())
	err := w.WriteStep(context.Background(), "a", &StepRecord{})
	assert.ErrorIs(t, err, ErrWriterClosed)
	assert.Empty(t, buf.String())
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "s3")

	const numWriters = 10
	const writesPerWriter = 100

	var wg sync.WaitGroup
	wg.Add(numWriters)
	for i := 0; i < numWriters; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < writesPerWriter; j++ {
				_ = w.WriteStep(context.Background(), "op", &StepRecord{Action: "delete", Source: "file.txt"})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, decodeLines(t, buf.String()), numWriters*writesPerWriter)
}

func TestJSONLWriter_ContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "s3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteStep(ctx, "op", &StepRecord{Source: "file.txt"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
}

func TestJSONLWriter_WriteFailure(t *testing.T) {
	w := NewJSONLWriter(&failingWriter{err: errors.New("disk full")}, "s3")

	err := w.WriteStep(context.Background(), "op", &StepRecord{Source: "file.txt"})
	require.Error(t, err)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "write", writeErr.Op)
}

func TestJSONLWriter_ShortWrite(t *testing.T) {
	sw := &shortWriteWriter{bytesPerWrite: 10}
	w := NewJSONLWriter(sw, "s3")

	err := w.WriteStep(context.Background(), "op", &StepRecord{
		Action:      "copy",
		Source:      "data/2024/file.parquet",
		Destination: "archive/2024/file.parquet",
	})
	require.NoError(t, err)

	records := decodeLines(t, sw.buf.String())
	require.Len(t, records, 1)
	assert.Equal(t, TypeStep, records[0].Type)
}

func TestJSONLWriter_ZeroWrite(t *testing.T) {
	w := NewJSONLWriter(zeroWriteWriter{}, "s3")

	err := w.WriteStep(context.Background(), "op", &StepRecord{Source: "file.txt"})
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

type failingWriter struct {
	err error
}

func (f *failingWriter) Write(p []byte) (int, error) {
	return 0, f.err
}

// shortWriteWriter writes at most bytesPerWrite bytes per call with a nil error.
type shortWriteWriter struct {
	buf           bytes.Buffer
	bytesPerWrite int
}

func (sw *shortWriteWriter) Write(p []byte) (int, error) {
	if len(p) > sw.bytesPerWrite {
		p = p[:sw.bytesPerWrite]
	}
	return sw.buf.Write(p)
}

type zeroWriteWriter struct{}

func (zeroWriteWriter) Write(p []byte) (int, error) {
	return 0, nil
}

func TestWriteError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &WriteError{Op: "marshal", Err: underlying}

	assert.Equal(t, "output: marshal: underlying error", err.Error())
	assert.ErrorIs(t, err, underlying)
}

func TestStepRecord_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(&StepRecord{Action: "delete", Source: "a", Success: true})
	require.NoError(t, err)

	s := string(data)
	assert.NotContains(t, s, "destination")
	assert.NotContains(t, s, "skipped")
	assert.NotContains(t, s, "kind")
	assert.Contains(t, s, `"success":true`)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		kind provider.ErrorKind
		want string
	}{
		{provider.CredentialsError, ErrCodeAccessDenied},
		{provider.BucketNotFoundError, ErrCodeNotFound},
		{provider.ObjectNotFoundError, ErrCodeNotFound},
		{provider.BucketNameInvalidError, ErrCodeInvalidName},
		{provider.ObjectNameInvalidError, ErrCodeInvalidName},
		{provider.NetworkError, ErrCodeNetwork},
		{provider.GenericServiceError, ErrCodeService},
		{provider.InternalSignatureError, ErrCodeInternal},
		{provider.InternalError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.kind))
		})
	}
}
