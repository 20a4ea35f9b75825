package provider

import "context"

// Optional provider capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Client interface remains intentionally small.

// ExistenceChecker reports whether an object exists without failing on absence.
type ExistenceChecker interface {
	Exists(ctx context.Context, bucket, key string) Reply[bool]
}

// Locator resolves the region a bucket lives in.
type Locator interface {
	Location(ctx context.Context, bucket string) Reply[string]
}

// CacheInvalidator drops cached client state such as bucket regions.
//
// Call this if/when a bucket's region or the credentials change.
type CacheInvalidator interface {
	InvalidateCaches()
}
