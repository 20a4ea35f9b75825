package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusdir/pkg/listing"
	"github.com/3leaps/nimbusdir/pkg/provider"
	"github.com/3leaps/nimbusdir/pkg/transcode"
)

const bucket = "test-bucket"

func newStore(t *testing.T, keys ...string) *Store {
	t.Helper()
	s := New(Config{})
	require.NoError(t, s.CreateBucket(bucket))
	for _, k := range keys {
		out := s.Put(context.Background(), bucket, k, []byte("content of "+k), nil)
		require.True(t, out.IsSuccess(), out.String())
	}
	s.ResetJournal()
	return s
}

func decode(t *testing.T, reply provider.Reply[[]byte]) listing.Listing {
	t.Helper()
	require.True(t, reply.IsSuccess(), reply.String())
	l, err := listing.DecodeBytes(reply.Value(), listing.Options{})
	require.NoError(t, err)
	return l
}

func TestStore_PutGetSize(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	out := s.Put(ctx, bucket, "a/b.txt", []byte("hello"), map[string]string{"Content-Type": "text/plain"})
	require.True(t, out.IsSuccess())

	got := s.Get(ctx, bucket, "a/b.txt")
	require.True(t, got.IsSuccess())
	assert.Equal(t, []byte("hello"), got.Value())
	assert.Equal(t, []byte("hello"), got.Payload())

	size := s.Size(ctx, bucket, "a/b.txt")
	require.True(t, size.IsSuccess())
	assert.Equal(t, int64(5), size.Value())

	assert.Equal(t, map[string]string{"Content-Type": "text/plain"}, s.Headers(bucket, "a/b.txt"))
	assert.Nil(t, s.Headers(bucket, "missing"))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := newStore(t, "k")
	ctx := context.Background()

	first := s.Get(ctx, bucket, "k").Value()
	first[0] = 'X'

	assert.Equal(t, []byte("content of k"), s.Get(ctx, bucket, "k").Value())
}

func TestStore_Failures(t *testing.T) {
	s := newStore(t, "present")
	ctx := context.Background()

	tests := []struct {
		name string
		out  provider.Outcome
		kind provider.ErrorKind
		code string
	}{
		{"missing object", s.Get(ctx, bucket, "absent").Outcome, provider.ObjectNotFoundError, "NoSuchKey"},
		{"size of missing object", s.Size(ctx, bucket, "absent").Outcome, provider.ObjectNotFoundError, "NoSuchKey"},
		{"copy missing source", s.Copy(ctx, bucket, "absent", "dst"), provider.ObjectNotFoundError, "NoSuchKey"},
		{"missing bucket", s.Get(ctx, "nope", "present").Outcome, provider.BucketNotFoundError, "NoSuchBucket"},
		{"list missing bucket", s.List(ctx, "nope", provider.ListOptions{}).Outcome, provider.BucketNotFoundError, "NoSuchBucket"},
		{"empty bucket", s.Get(ctx, "", "present").Outcome, provider.BucketNameInvalidError, "InvalidBucketName"},
		{"empty key", s.Put(ctx, bucket, "", nil, nil), provider.ObjectNameInvalidError, "InvalidArgument"},
		{"empty copy destination", s.Copy(ctx, bucket, "present", ""), provider.ObjectNameInvalidError, "InvalidArgument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.False(t, tt.out.IsSuccess())
			assert.Equal(t, tt.kind, tt.out.Kind())
			assert.Nil(t, tt.out.TransportError())
			assert.NotEmpty(t, tt.out.ServiceError())

			doc, err := transcode.Transcode(tt.out.Payload())
			require.NoError(t, err)
			assert.Equal(t, tt.code, doc.Path("Error", "Code").Text())
		})
	}
}

func TestStore_DeleteMissingSucceeds(t *testing.T) {
	s := newStore(t)
	assert.True(t, s.Delete(context.Background(), bucket, "never-there").IsSuccess())
}

func TestStore_CopyAndDelete(t *testing.T) {
	s := newStore(t, "old/x.txt")
	ctx := context.Background()

	out := s.Copy(ctx, bucket, "old/x.txt", "new/x.txt")
	require.True(t, out.IsSuccess())
	doc, err := transcode.Transcode(out.Payload())
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Path("CopyObjectResult", "ETag").Text())

	require.True(t, s.Delete(ctx, bucket, "old/x.txt").IsSuccess())
	assert.Equal(t, []string{"new/x.txt"}, s.Keys(bucket))
	assert.Equal(t, []byte("content of old/x.txt"), s.Get(ctx, bucket, "new/x.txt").Value())
}

func TestStore_ListDelimiter(t *testing.T) {
	s := newStore(t, "a/b/", "a/b/file1.txt", "a/b/sub/", "a/b/sub/deep.txt", "a/c.txt", "z.txt")
	ctx := context.Background()

	l := decode(t, s.List(ctx, bucket, provider.ListOptions{Prefix: "a/b/", Delimiter: "/"}))
	assert.Equal(t, []string{"a/b/sub/", "a/b/"}, l.Folders)
	assert.Equal(t, []string{"a/b/file1.txt"}, l.Files)

	l = decode(t, s.List(ctx, bucket, provider.ListOptions{Prefix: "a/b/"}))
	assert.Equal(t, []string{"a/b/", "a/b/sub/"}, l.Folders)
	assert.Equal(t, []string{"a/b/file1.txt", "a/b/sub/deep.txt"}, l.Files)

	l = decode(t, s.List(ctx, bucket, provider.ListOptions{Delimiter: "/"}))
	assert.Equal(t, []string{"a/"}, l.Folders)
	assert.Equal(t, []string{"z.txt"}, l.Files)
}

func TestStore_ListEmpty(t *testing.T) {
	s := newStore(t, "other/x")

	reply := s.List(context.Background(), bucket, provider.ListOptions{Prefix: "a/"})
	l := decode(t, reply)
	assert.True(t, l.Empty())
	assert.False(t, l.IsTruncated)

	doc, err := transcode.Transcode(reply.Value())
	require.NoError(t, err)
	assert.Equal(t, "0", doc.Path("ListBucketResult", "KeyCount").Text())
}

func TestStore_ListPagination(t *testing.T) {
	var keys []string
	for i := 0; i < 7; i++ {
		keys = append(keys, fmt.Sprintf("p/%02d.txt", i))
	}
	s := newStore(t, keys...)
	ctx := context.Background()

	var (
		got   []string
		token string
		pages int
	)
	for {
		l := decode(t, s.List(ctx, bucket, provider.ListOptions{Prefix: "p/", MaxKeys: 3, ContinuationToken: token}))
		got = append(got, l.Files...)
		pages++
		if !l.IsTruncated {
			assert.Empty(t, l.NextContinuationToken)
			break
		}
		token = l.NextContinuationToken
		require.NotEmpty(t, token)
	}

	assert.Equal(t, keys, got)
	assert.Equal(t, 3, pages)
}

func TestStore_ListPaginationOverCommonPrefixes(t *testing.T) {
	s := newStore(t, "a/1", "a/2", "b/1", "c.txt")
	ctx := context.Background()

	first := decode(t, s.List(ctx, bucket, provider.ListOptions{Delimiter: "/", MaxKeys: 1}))
	require.True(t, first.IsTruncated)
	assert.Equal(t, []string{"a/"}, first.Folders)

	second := decode(t, s.List(ctx, bucket, provider.ListOptions{Delimiter: "/", MaxKeys: 5, ContinuationToken: first.NextContinuationToken}))
	assert.Equal(t, []string{"b/"}, second.Folders)
	assert.Equal(t, []string{"c.txt"}, second.Files)
}

func TestStore_ConfigMaxKeysCapsPage(t *testing.T) {
	s := New(Config{MaxKeys: 2})
	require.NoError(t, s.CreateBucket(bucket))
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.True(t, s.Put(ctx, bucket, k, nil, nil).IsSuccess())
	}

	l := decode(t, s.List(ctx, bucket, provider.ListOptions{MaxKeys: 100}))
	assert.Equal(t, []string{"a", "b"}, l.Files)
	assert.True(t, l.IsTruncated)
}

func TestStore_Journal(t *testing.T) {
	s := newStore(t, "old/x.txt")
	ctx := context.Background()

	s.Copy(ctx, bucket, "old/x.txt", "new/x.txt")
	s.Delete(ctx, bucket, "old/x.txt")
	s.Get(ctx, bucket, "missing")

	var got []string
	for _, e := range s.Journal() {
		got = append(got, e.String())
	}
	assert.Equal(t, []string{
		"Copy old/x.txt->new/x.txt",
		"Delete old/x.txt",
		"Get missing",
	}, got)

	s.ResetJournal()
	assert.Empty(t, s.Journal())
}

func TestStore_InjectFault(t *testing.T) {
	s := newStore(t, "a", "b")
	ctx := context.Background()

	s.InjectFault(provider.OpDelete, "a", provider.CredentialsError)
	s.InjectFault(provider.OpCopy, "", provider.NetworkError)

	del := s.Delete(ctx, bucket, "a")
	assert.Equal(t, provider.CredentialsError, del.Kind())
	assert.True(t, provider.IsInvalidCredentials(del.Err()))
	assert.True(t, s.Delete(ctx, bucket, "b").IsSuccess(), "fault is scoped to its key")

	cp := s.Copy(ctx, bucket, "a", "c")
	assert.Equal(t, provider.NetworkError, cp.Kind())
	assert.True(t, errors.Is(cp.TransportError(), ErrInjected))
	assert.True(t, errors.Is(cp.Err(), ErrInjected))

	s.ClearFaults()
	assert.True(t, s.Delete(ctx, bucket, "a").IsSuccess())
}

func TestStore_CancelledContext(t *testing.T) {
	s := newStore(t, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := s.Get(ctx, bucket, "a")
	assert.Equal(t, provider.NetworkError, out.Kind())
	assert.ErrorIs(t, out.TransportError(), context.Canceled)
}

func TestStore_Capabilities(t *testing.T) {
	s := New(Config{Region: "eu-west-1"})
	require.NoError(t, s.CreateBucket(bucket))
	ctx := context.Background()
	require.True(t, s.Put(ctx, bucket, "k", []byte("v"), nil).IsSuccess())

	var c provider.Client = s
	exists, ok := c.(provider.ExistenceChecker)
	require.True(t, ok)
	assert.True(t, exists.Exists(ctx, bucket, "k").Value())

	absent := exists.Exists(ctx, bucket, "nope")
	assert.True(t, absent.IsSuccess())
	assert.False(t, absent.Value())

	loc := s.Location(ctx, bucket)
	require.True(t, loc.IsSuccess())
	assert.Equal(t, "eu-west-1", loc.Value())
	assert.Equal(t, provider.BucketNotFoundError, s.Location(ctx, "nope").Kind())

	s.InvalidateCaches()
	assert.Equal(t, DefaultRegion, New(Config{}).region)
}

func TestStore_CreateBucket(t *testing.T) {
	s := New(Config{})
	assert.ErrorIs(t, s.CreateBucket(""), provider.ErrBucketNameInvalid)
	require.NoError(t, s.CreateBucket("b"))
	require.NoError(t, s.CreateBucket("b"))
	assert.Empty(t, s.Keys("b"))
}
