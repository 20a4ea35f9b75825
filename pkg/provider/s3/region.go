package s3

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/3leaps/nimbusdir/pkg/provider"
)

// DefaultLocationTimeout bounds a shared region lookup when the client has
// no Timeout of its own.
const DefaultLocationTimeout = 30 * time.Second

// regionCache remembers the region of each bucket.
//
// Concurrent misses for the same bucket share one lookup. The shared lookup
// runs detached from any single caller, so a caller that gives up does not
// fail the others. Failed lookups are not cached.
type regionCache struct {
	lookup  func(ctx context.Context, bucket string) provider.Reply[string]
	timeout time.Duration

	mu      sync.RWMutex
	regions map[string]string
	group   singleflight.Group
}

func newRegionCache(lookup func(ctx context.Context, bucket string) provider.Reply[string], timeout time.Duration) *regionCache {
	if timeout <= 0 {
		timeout = DefaultLocationTimeout
	}
	return &regionCache{lookup: lookup, timeout: timeout, regions: make(map[string]string)}
}

func (c *regionCache) cached(bucket string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	region, ok := c.regions[bucket]
	return region, ok
}

// resolve returns the bucket region, reported against the caller's own
// call. A hit yields a successful reply with no payload; a miss yields the
// lookup's reply. If ctx ends first the caller gets a transport failure and
// the lookup keeps running for the other waiters.
func (c *regionCache) resolve(ctx context.Context, call provider.Call, bucket string) provider.Reply[string] {
	if region, ok := c.cached(bucket); ok {
		return provider.NewReply(call.Success(nil), region)
	}
	if err := ctx.Err(); err != nil {
		return provider.NewReply(call.TransportFailure(err, nil), "")
	}

	ch := c.group.DoChan(bucket, func() (any, error) {
		if region, ok := c.cached(bucket); ok {
			return provider.NewReply(call.Success(nil), region), nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		reply := c.lookup(lctx, bucket)
		if reply.IsSuccess() {
			c.mu.Lock()
			c.regions[bucket] = reply.Value()
			c.mu.Unlock()
		}
		return reply, nil
	})

	select {
	case <-ctx.Done():
		return provider.NewReply(call.TransportFailure(ctx.Err(), nil), "")
	case res := <-ch:
		reply := res.Val.(provider.Reply[string])
		return provider.NewReply(reply.WithCall(call), reply.Value())
	}
}

func (c *regionCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regions = make(map[string]string)
}

func (c *regionCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.regions)
}
