package output

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusdir/pkg/folder"
	"github.com/3leaps/nimbusdir/pkg/provider"
	"github.com/3leaps/nimbusdir/pkg/provider/memory"
)

func newStore(t *testing.T, keys ...string) *memory.Store {
	t.Helper()
	s := memory.New(memory.Config{})
	require.NoError(t, s.CreateBucket("b"))
	for _, k := range keys {
		require.True(t, s.Put(context.Background(), "b", k, []byte(k), nil).IsSuccess())
	}
	return s
}

func TestWriteReport_PartialRename(t *testing.T) {
	s := newStore(t, "old/x.txt", "old/y.txt")
	s.InjectFault(provider.OpCopy, "old/x.txt", provider.CredentialsError)
	r := folder.New(s, folder.DefaultConfig()).RenameFolder(context.Background(), "b", "old/", "new/")

	var buf bytes.Buffer
	require.NoError(t, WriteReport(context.Background(), NewJSONLWriter(&buf, "memory"), r))

	records := decodeLines(t, buf.String())
	var types []string
	for _, rec := range records {
		assert.Equal(t, r.OperationID, rec.OperationID)
		assert.Equal(t, "memory", rec.Provider)
		types = append(types, rec.Type)
	}
	assert.Equal(t, []string{TypeStep, TypeError, TypeStep, TypeStep, TypeStep, TypeSummary}, types)

	var failed StepRecord
	require.NoError(t, json.Unmarshal(records[0].Data, &failed))
	assert.False(t, failed.Success)
	assert.Equal(t, "CredentialsError", failed.Kind)

	var errRec ErrorRecord
	require.NoError(t, json.Unmarshal(records[1].Data, &errRec))
	assert.Equal(t, ErrCodeAccessDenied, errRec.Code)
	assert.Equal(t, "old/x.txt", errRec.Key)
	assert.Contains(t, errRec.Payload, "<Code>AccessDenied</Code>")

	var skipped StepRecord
	require.NoError(t, json.Unmarshal(records[2].Data, &skipped))
	assert.True(t, skipped.Skipped)
	assert.Empty(t, skipped.Kind)

	var sum SummaryRecord
	require.NoError(t, json.Unmarshal(records[5].Data, &sum))
	assert.Equal(t, folder.OpRenameFolder, sum.Op)
	assert.False(t, sum.Succeeded)
	assert.Equal(t, 4, sum.Steps)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, []string{"old/x.txt"}, sum.FailedEntries)
	assert.Equal(t, 1, sum.Pages)
}

func TestWriteReport_ListFailure(t *testing.T) {
	r := folder.New(newStore(t), folder.DefaultConfig()).RemoveFolder(context.Background(), "missing", "a/")

	var buf bytes.Buffer
	require.NoError(t, WriteReport(context.Background(), NewJSONLWriter(&buf, "memory"), r))

	records := decodeLines(t, buf.String())
	require.Len(t, records, 2)
	assert.Equal(t, TypeError, records[0].Type)
	assert.Equal(t, TypeSummary, records[1].Type)

	var errRec ErrorRecord
	require.NoError(t, json.Unmarshal(records[0].Data, &errRec))
	assert.Equal(t, ErrCodeNotFound, errRec.Code)
	assert.Equal(t, "a/", errRec.Prefix)
	assert.Contains(t, errRec.Payload, "NoSuchBucket")
}

func TestWriteReport_Noop(t *testing.T) {
	r := folder.New(newStore(t, "a"), folder.DefaultConfig()).CopyFile(context.Background(), "b", "a", "a")

	var buf bytes.Buffer
	require.NoError(t, WriteReport(context.Background(), NewJSONLWriter(&buf, "memory"), r))

	records := decodeLines(t, buf.String())
	require.Len(t, records, 1)

	var sum SummaryRecord
	require.NoError(t, json.Unmarshal(records[0].Data, &sum))
	assert.True(t, sum.Noop)
	assert.True(t, sum.Succeeded)
	assert.Zero(t, sum.Steps)
}

func TestWriteReport_StopsOnWriteFailure(t *testing.T) {
	r := folder.New(newStore(t, "a/1"), folder.DefaultConfig()).RemoveFolder(context.Background(), "b", "a/")

	w := NewJSONLWriter(&bytes.Buffer{}, "memory")
	require.NoError(t, w.Close())
	assert.ErrorIs(t, WriteReport(context.Background(), w, r), ErrWriterClosed)
}
