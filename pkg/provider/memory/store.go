// Package memory implements provider.Client over an in-process key store.
//
// The store speaks the same wire shapes as S3: List returns a ListObjectsV2
// ListBucketResult document and failures carry an <Error> document. It
// records every primitive call in a journal and supports fault injection,
// which makes it the reference collaborator for folder engine tests.
package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/3leaps/nimbusdir/pkg/provider"
)

// DefaultRegion is reported by Location when Config.Region is empty.
const DefaultRegion = "us-east-1"

// DefaultMaxKeys is the page size used when ListOptions.MaxKeys is zero.
const DefaultMaxKeys = 1000

// ErrInjected is the transport error returned for injected NetworkError faults.
var ErrInjected = errors.New("memory: injected network failure")

// Ensure Store implements provider capability interfaces.
var (
	_ provider.Client           = (*Store)(nil)
	_ provider.ExistenceChecker = (*Store)(nil)
	_ provider.Locator          = (*Store)(nil)
	_ provider.CacheInvalidator = (*Store)(nil)
)

// Config configures a Store.
type Config struct {
	// Region is reported by Location. Empty uses DefaultRegion.
	Region string

	// MaxKeys caps every List page. Zero uses DefaultMaxKeys.
	MaxKeys int
}

// Entry is one journaled primitive call.
type Entry struct {
	Op     string
	Bucket string
	Key    string

	// Dest is the destination key of a Copy.
	Dest string
}

// String renders the entry as "Op key" or "Op src->dst".
func (e Entry) String() string {
	if e.Dest != "" {
		return fmt.Sprintf("%s %s->%s", e.Op, e.Key, e.Dest)
	}
	return fmt.Sprintf("%s %s", e.Op, e.Key)
}

type object struct {
	content  []byte
	headers  map[string]string
	etag     string
	modified time.Time
}

type fault struct {
	op  string
	key string
}

// Store is an in-memory object store. It is safe for concurrent use.
type Store struct {
	region  string
	maxKeys int

	mu      sync.RWMutex
	buckets map[string]map[string]*object
	journal []Entry
	faults  map[fault]provider.ErrorKind
}

// New returns an empty store.
func New(cfg Config) *Store {
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Store{
		region:  region,
		maxKeys: maxKeys,
		buckets: make(map[string]map[string]*object),
		faults:  make(map[fault]provider.ErrorKind),
	}
}

// CreateBucket creates bucket if it does not exist.
func (s *Store) CreateBucket(bucket string) error {
	if bucket == "" {
		return fmt.Errorf("create bucket: %w", provider.ErrBucketNameInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string]*object)
	}
	return nil
}

// Keys returns the sorted keys held in bucket.
func (s *Store) Keys(bucket string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.buckets[bucket])
}

// Headers returns the headers stored with key, or nil if key is absent.
func (s *Store) Headers(bucket, key string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.buckets[bucket][key]
	if !ok {
		return nil
	}
	h := make(map[string]string, len(obj.headers))
	for k, v := range obj.headers {
		h[k] = v
	}
	return h
}

// Journal returns the primitive calls made so far, in order.
func (s *Store) Journal() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.journal...)
}

// ResetJournal clears the journal.
func (s *Store) ResetJournal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = nil
}

// InjectFault makes every op call on key fail with kind until ClearFaults.
// An empty key matches every key. NetworkError faults surface as transport
// failures wrapping ErrInjected; other kinds as service failures.
func (s *Store) InjectFault(op, key string, kind provider.ErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[fault{op: op, key: key}] = kind
}

// ClearFaults removes every injected fault.
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[fault]provider.ErrorKind)
}

// List returns one page of keys under opts.Prefix as a ListBucketResult.
func (s *Store) List(ctx context.Context, bucket string, opts provider.ListOptions) provider.Reply[[]byte] {
	call := s.call(provider.OpList, bucket, "")
	s.record(Entry{Op: provider.OpList, Bucket: bucket, Key: opts.Prefix})
	if out, failed := s.check(ctx, call, bucket, "", false); failed {
		return provider.NewReply[[]byte](out, nil)
	}

	s.mu.RLock()
	page := paginate(s.buckets[bucket], opts, s.maxKeys)
	s.mu.RUnlock()

	body, err := encodeList(bucket, opts, page)
	if err != nil {
		return provider.NewReply[[]byte](call.ServiceFailure(provider.InternalError, err.Error(), nil), nil)
	}
	return provider.NewReply(call.Success(body), body)
}

// Put stores content at key, replacing any existing object.
func (s *Store) Put(ctx context.Context, bucket, key string, content []byte, headers map[string]string) provider.Outcome {
	call := s.call(provider.OpPut, bucket, key)
	s.record(Entry{Op: provider.OpPut, Bucket: bucket, Key: key})
	if out, failed := s.check(ctx, call, bucket, key, true); failed {
		return out
	}

	obj := newObject(content, headers)
	s.mu.Lock()
	s.buckets[bucket][key] = obj
	s.mu.Unlock()
	return call.Success(nil)
}

// Get returns the content of key.
func (s *Store) Get(ctx context.Context, bucket, key string) provider.Reply[[]byte] {
	call := s.call(provider.OpGet, bucket, key)
	s.record(Entry{Op: provider.OpGet, Bucket: bucket, Key: key})
	if out, failed := s.check(ctx, call, bucket, key, true); failed {
		return provider.NewReply[[]byte](out, nil)
	}

	obj, out := s.lookup(call, bucket, key)
	if obj == nil {
		return provider.NewReply[[]byte](out, nil)
	}
	body := append([]byte(nil), obj.content...)
	return provider.NewReply(call.Success(body), body)
}

// Size returns the content length of key.
func (s *Store) Size(ctx context.Context, bucket, key string) provider.Reply[int64] {
	call := s.call(provider.OpSize, bucket, key)
	s.record(Entry{Op: provider.OpSize, Bucket: bucket, Key: key})
	if out, failed := s.check(ctx, call, bucket, key, true); failed {
		return provider.NewReply[int64](out, 0)
	}

	obj, out := s.lookup(call, bucket, key)
	if obj == nil {
		return provider.NewReply[int64](out, 0)
	}
	return provider.NewReply(call.Success(nil), int64(len(obj.content)))
}

// Copy duplicates srcKey to dstKey within bucket.
func (s *Store) Copy(ctx context.Context, bucket, srcKey, dstKey string) provider.Outcome {
	call := s.call(provider.OpCopy, bucket, srcKey)
	s.record(Entry{Op: provider.OpCopy, Bucket: bucket, Key: srcKey, Dest: dstKey})
	if out, failed := s.check(ctx, call, bucket, srcKey, true); failed {
		return out
	}
	if dstKey == "" {
		return call.ServiceFailure(provider.ObjectNameInvalidError, "Object key is empty",
			errorDocument("InvalidArgument", "Object key is empty", bucket))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.buckets[bucket][srcKey]
	if !ok {
		return notFound(call, bucket, srcKey)
	}
	dst := newObject(src.content, src.headers)
	s.buckets[bucket][dstKey] = dst

	body, err := encodeCopyResult(dst)
	if err != nil {
		return call.ServiceFailure(provider.InternalError, err.Error(), nil)
	}
	return call.Success(body)
}

// Delete removes key. Deleting a missing key succeeds, as on S3.
func (s *Store) Delete(ctx context.Context, bucket, key string) provider.Outcome {
	call := s.call(provider.OpDelete, bucket, key)
	s.record(Entry{Op: provider.OpDelete, Bucket: bucket, Key: key})
	if out, failed := s.check(ctx, call, bucket, key, true); failed {
		return out
	}

	s.mu.Lock()
	delete(s.buckets[bucket], key)
	s.mu.Unlock()
	return call.Success(nil)
}

// Exists reports whether key is present. Absence is not a failure.
func (s *Store) Exists(ctx context.Context, bucket, key string) provider.Reply[bool] {
	call := s.call(provider.OpExists, bucket, key)
	s.record(Entry{Op: provider.OpExists, Bucket: bucket, Key: key})
	if out, failed := s.check(ctx, call, bucket, key, true); failed {
		return provider.NewReply(out, false)
	}

	s.mu.RLock()
	_, ok := s.buckets[bucket][key]
	s.mu.RUnlock()
	return provider.NewReply(call.Success(nil), ok)
}

// Location returns the configured region for an existing bucket.
func (s *Store) Location(ctx context.Context, bucket string) provider.Reply[string] {
	call := s.call(provider.OpLocation, bucket, "")
	s.record(Entry{Op: provider.OpLocation, Bucket: bucket})
	if out, failed := s.check(ctx, call, bucket, "", false); failed {
		return provider.NewReply(out, "")
	}
	return provider.NewReply(call.Success(nil), s.region)
}

// InvalidateCaches is a no-op; the store keeps no derived state.
func (s *Store) InvalidateCaches() {}

func (s *Store) call(op, bucket, key string) provider.Call {
	return provider.Call{Provider: provider.ProviderMemory, Op: op, Bucket: bucket, Key: key}
}

func (s *Store) record(e Entry) {
	s.mu.Lock()
	s.journal = append(s.journal, e)
	s.mu.Unlock()
}

// check applies the failures every primitive shares: cancellation, injected
// faults, invalid identifiers and a missing bucket.
func (s *Store) check(ctx context.Context, call provider.Call, bucket, key string, needKey bool) (provider.Outcome, bool) {
	if err := ctx.Err(); err != nil {
		return call.TransportFailure(err, nil), true
	}

	s.mu.RLock()
	kind, faulted := s.faults[fault{op: call.Op, key: key}]
	if !faulted {
		kind, faulted = s.faults[fault{op: call.Op}]
	}
	_, bucketExists := s.buckets[bucket]
	s.mu.RUnlock()

	switch {
	case faulted && kind == provider.NetworkError:
		return call.TransportFailure(ErrInjected, nil), true
	case faulted:
		code := codeFor(kind)
		msg := "Injected " + kind.String()
		return call.ServiceFailure(kind, msg, errorDocument(code, msg, resource(bucket, key))), true
	case bucket == "":
		return call.ServiceFailure(provider.BucketNameInvalidError, "Bucket name is empty",
			errorDocument("InvalidBucketName", "Bucket name is empty", "")), true
	case needKey && key == "":
		return call.ServiceFailure(provider.ObjectNameInvalidError, "Object key is empty",
			errorDocument("InvalidArgument", "Object key is empty", bucket)), true
	case !bucketExists:
		msg := "The specified bucket does not exist"
		return call.ServiceFailure(provider.BucketNotFoundError, msg,
			errorDocument("NoSuchBucket", msg, bucket)), true
	}
	return provider.Outcome{}, false
}

func (s *Store) lookup(call provider.Call, bucket, key string) (*object, provider.Outcome) {
	s.mu.RLock()
	obj, ok := s.buckets[bucket][key]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(call, bucket, key)
	}
	return obj, provider.Outcome{}
}

func notFound(call provider.Call, bucket, key string) provider.Outcome {
	msg := "The specified key does not exist."
	return call.ServiceFailure(provider.ObjectNotFoundError, msg,
		errorDocument("NoSuchKey", msg, resource(bucket, key)))
}

func newObject(content []byte, headers map[string]string) *object {
	sum := md5.Sum(content)
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return &object{
		content:  append([]byte(nil), content...),
		headers:  h,
		etag:     `"` + hex.EncodeToString(sum[:]) + `"`,
		modified: time.Now().UTC(),
	}
}

func sortedKeys(objects map[string]*object) []string {
	if len(objects) == 0 {
		return nil
	}
	keys := make([]string, 0, len(objects))
	for k := range objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func resource(bucket, key string) string {
	if key == "" {
		return bucket
	}
	return bucket + "/" + key
}

// codeFor returns the S3 error code a service would send for kind.
func codeFor(kind provider.ErrorKind) string {
	switch kind {
	case provider.CredentialsError:
		return "AccessDenied"
	case provider.BucketNameInvalidError:
		return "InvalidBucketName"
	case provider.BucketNotFoundError:
		return "NoSuchBucket"
	case provider.ObjectNameInvalidError:
		return "KeyTooLongError"
	case provider.ObjectNotFoundError:
		return "NoSuchKey"
	case provider.InternalSignatureError:
		return "SignatureDoesNotMatch"
	default:
		return "InternalError"
	}
}

type listEntry struct {
	key    string
	prefix string
	obj    *object
}

func (e listEntry) name() string {
	if e.prefix != "" {
		return e.prefix
	}
	return e.key
}

type listPage struct {
	entries   []listEntry
	truncated bool
	next      string
	maxKeys   int
}

// paginate collapses keys into common prefixes and cuts one page.
// The continuation token is the name of the last entry returned.
func paginate(objects map[string]*object, opts provider.ListOptions, limit int) listPage {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 || maxKeys > limit {
		maxKeys = limit
	}

	var all []listEntry
	seen := make(map[string]bool)
	for _, k := range sortedKeys(objects) {
		if !strings.HasPrefix(k, opts.Prefix) {
			continue
		}
		if opts.Delimiter != "" {
			rest := k[len(opts.Prefix):]
			if i := strings.Index(rest, opts.Delimiter); i >= 0 {
				cp := opts.Prefix + rest[:i+len(opts.Delimiter)]
				if !seen[cp] {
					seen[cp] = true
					all = append(all, listEntry{prefix: cp})
				}
				continue
			}
		}
		all = append(all, listEntry{key: k, obj: objects[k]})
	}

	start := 0
	if opts.ContinuationToken != "" {
		for start < len(all) && all[start].name() <= opts.ContinuationToken {
			start++
		}
	}
	end := start + maxKeys
	if end > len(all) {
		end = len(all)
	}

	page := listPage{entries: all[start:end], maxKeys: maxKeys}
	if end < len(all) {
		page.truncated = true
		page.next = all[end-1].name()
	}
	return page
}
