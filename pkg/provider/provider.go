// Package provider defines the primitive object-store contract consumed by the
// folder engine, and the uniform Outcome returned by every primitive.
//
// Providers expose a flat key namespace with put, get, size, copy, delete and
// prefix listing. Signing, transport, retries and credential handling live
// inside the provider; callers only see Outcomes.
package provider

import "context"

// Client is the signed object-store client.
//
// Implementations should:
//   - Return the raw response body in every Outcome, including failures
//   - Never panic on service errors; classify them into an ErrorKind
//   - Be safe for concurrent use
type Client interface {
	// List returns one page of a ListObjectsV2-style listing as raw markup.
	List(ctx context.Context, bucket string, opts ListOptions) Reply[[]byte]

	// Put uploads content to key. headers may carry optional request headers.
	Put(ctx context.Context, bucket, key string, content []byte, headers map[string]string) Outcome

	// Get downloads the content of key.
	Get(ctx context.Context, bucket, key string) Reply[[]byte]

	// Size returns the content length of key.
	// Fails with ObjectNotFoundError if the object does not exist.
	Size(ctx context.Context, bucket, key string) Reply[int64]

	// Copy performs a server-side copy of srcKey to dstKey within bucket.
	Copy(ctx context.Context, bucket, srcKey, dstKey string) Outcome

	// Delete removes key.
	Delete(ctx context.Context, bucket, key string) Outcome
}

// Primitive operation names carried in Call.Op.
const (
	OpList     = "List"
	OpPut      = "Put"
	OpGet      = "Get"
	OpSize     = "Size"
	OpCopy     = "Copy"
	OpDelete   = "Delete"
	OpExists   = "Exists"
	OpLocation = "Location"
)

// ListOptions configures a List call.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	// Empty string lists all objects.
	Prefix string

	// Delimiter groups keys into CommonPrefixes (e.g., "/").
	// Empty string requests a flat listing.
	Delimiter string

	// ContinuationToken resumes listing from a previous page.
	// Empty string starts from the beginning.
	ContinuationToken string

	// MaxKeys limits the number of keys returned per page.
	// Zero uses provider default (typically 1000).
	MaxKeys int
}

// ProviderType identifies a storage provider.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderMemory represents the in-process store.
	ProviderMemory ProviderType = "memory"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
