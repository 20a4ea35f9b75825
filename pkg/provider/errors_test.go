package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "NoError", NoError.String())
	assert.Equal(t, "ObjectNotFoundError", ObjectNotFoundError.String())
	assert.Equal(t, "UnknownError", UnknownError.String())
	assert.Equal(t, "ErrorKind(42)", ErrorKind(42).String())
}

func TestErrorKind_Sentinel(t *testing.T) {
	assert.NoError(t, NoError.Sentinel())

	seen := map[error]ErrorKind{}
	for k := NetworkError; k <= UnknownError; k++ {
		s := k.Sentinel()
		if assert.Error(t, s, "kind %s", k) {
			prev, dup := seen[s]
			assert.False(t, dup, "kinds %s and %s share a sentinel", prev, k)
			seen[s] = k
		}
	}
}

func TestProviderError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ProviderError
		expected string
	}{
		{
			name: "with key",
			err: &ProviderError{
				Op:       "Size",
				Provider: ProviderS3,
				Bucket:   "my-bucket",
				Key:      "path/to/file.txt",
				Err:      ErrNotFound,
			},
			expected: "s3 Size: my-bucket/path/to/file.txt: object not found",
		},
		{
			name: "without key",
			err: &ProviderError{
				Op:       "List",
				Provider: ProviderS3,
				Bucket:   "my-bucket",
				Err:      ErrInvalidCredentials,
			},
			expected: "s3 List: my-bucket: invalid credentials",
		},
		{
			name: "without bucket",
			err: &ProviderError{
				Op:       "New",
				Provider: ProviderS3,
				Err:      errors.New("failed to load config"),
			},
			expected: "s3 New: failed to load config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	err := &ProviderError{Op: "Get", Provider: ProviderS3, Bucket: "b", Key: "k", Err: ErrNotFound}

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrBucketNotFound))
	assert.Equal(t, ErrNotFound, err.Unwrap())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, NoError},
		{"provider error", &ProviderError{Kind: BucketNotFoundError, Err: ErrBucketNotFound}, BucketNotFoundError},
		{"wrapped sentinel", fmt.Errorf("copy: %w", ErrNotFound), ObjectNotFoundError},
		{"network sentinel", ErrNetwork, NetworkError},
		{"unclassified", errors.New("boom"), UnknownError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsHelpers(t *testing.T) {
	assert.True(t, IsNotFound(&ProviderError{Err: ErrNotFound}))
	assert.False(t, IsNotFound(ErrBucketNotFound))

	assert.True(t, IsBucketNotFound(&ProviderError{Err: ErrBucketNotFound}))
	assert.False(t, IsBucketNotFound(ErrNotFound))

	assert.True(t, IsInvalidCredentials(ErrInvalidCredentials))
	assert.False(t, IsInvalidCredentials(errors.New("some error")))

	assert.True(t, IsNetwork(fmt.Errorf("%w: dial tcp", ErrNetwork)))
	assert.False(t, IsNetwork(ErrService))
}

func TestProviderType_String(t *testing.T) {
	assert.Equal(t, "s3", ProviderS3.String())
	assert.Equal(t, "memory", ProviderMemory.String())
}
