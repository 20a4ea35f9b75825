// Package folder emulates folders on a flat object store.
//
// A folder is a key prefix ending in the delimiter. Folder operations are
// built from the primitives of provider.Client:
//   - RemoveFolder deletes every file under the prefix, then every folder
//     marker key
//   - CopyFolder copies every file to the new prefix; folder markers are not
//     copied
//   - RenameFolder copies then deletes every file, then deletes every folder
//     marker; no marker is created under the new prefix
//
// Multi-entry operations collect the complete listing first, then process
// entries one at a time in listing order, files before folder markers. They
// never abort early and never retry; each per-entry result is recorded in the
// returned Report. There is no rollback: a partially failed rename can leave
// both copies of a file, which the Report shows.
package folder

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/nimbusdir/pkg/listing"
	"github.com/3leaps/nimbusdir/pkg/provider"
)

// Config configures engine behavior.
type Config struct {
	// Delimiter separates folder levels. Keys ending in it are folders.
	// Default: "/"
	Delimiter string

	// PageSize is sent as MaxKeys on every list request.
	// Zero uses the client default.
	PageSize int

	// PageLimit caps the list pages a multi-entry operation collects.
	// Zero means no limit.
	PageLimit int

	// RateLimit is the maximum primitive calls per second.
	// Zero means unlimited.
	RateLimit float64
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Delimiter: listing.DefaultDelimiter,
	}
}

// ListRequest selects one page of a listing.
type ListRequest struct {
	Prefix            string
	Delimiter         string
	ContinuationToken string
	MaxKeys           int
}

// Engine runs folder operations against a client.
//
// Engine holds no per-operation state and is safe for concurrent use once
// configured.
type Engine struct {
	client  provider.Client
	config  Config
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *Metrics
}

// New creates an engine over client.
//
// Use WithLogger and WithMetrics to attach observability after creation.
func New(client provider.Client, cfg Config) *Engine {
	if cfg.Delimiter == "" {
		cfg.Delimiter = DefaultConfig().Delimiter
	}

	e := &Engine{
		client: client,
		config: cfg,
		logger: zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return e
}

// WithLogger sets the logger. Nil restores the no-op logger.
// Returns the engine for method chaining.
func (e *Engine) WithLogger(l *zap.Logger) *Engine {
	if l == nil {
		l = zap.NewNop()
	}
	e.logger = l
	return e
}

// WithMetrics sets the metrics sink.
// Returns the engine for method chaining.
func (e *Engine) WithMetrics(m *Metrics) *Engine {
	e.metrics = m
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// List fetches one page of entries under prefix, grouped by delimiter.
//
// An empty delimiter requests a flat listing; entries are still classified
// on the configured folder delimiter.
func (e *Engine) List(ctx context.Context, bucket, prefix, delimiter string) (listing.Listing, provider.Outcome) {
	return e.ListPage(ctx, bucket, ListRequest{Prefix: prefix, Delimiter: delimiter})
}

// ListPage fetches one page of entries, resuming from req.ContinuationToken.
// Zero req.MaxKeys uses Config.PageSize.
//
// A response that is not well-formed markup is a failed Outcome of kind
// InternalError carrying the raw payload.
func (e *Engine) ListPage(ctx context.Context, bucket string, req ListRequest) (listing.Listing, provider.Outcome) {
	call := provider.Call{Op: provider.OpList, Bucket: bucket}
	if err := e.wait(ctx); err != nil {
		return listing.Listing{}, call.TransportFailure(err, nil)
	}

	maxKeys := req.MaxKeys
	if maxKeys <= 0 {
		maxKeys = e.config.PageSize
	}
	reply := e.client.List(ctx, bucket, provider.ListOptions{
		Prefix:            req.Prefix,
		Delimiter:         req.Delimiter,
		ContinuationToken: req.ContinuationToken,
		MaxKeys:           maxKeys,
	})
	if !reply.IsSuccess() {
		return listing.Listing{}, reply.Outcome
	}

	delim := req.Delimiter
	if delim == "" {
		delim = e.config.Delimiter
	}
	l, err := listing.DecodeBytes(reply.Value(), listing.Options{Delimiter: delim})
	if err != nil {
		call = reply.Call()
		return listing.Listing{}, call.ServiceFailure(provider.InternalError, err.Error(), reply.Value())
	}
	return l, reply.Outcome
}

// RemoveFolder deletes every key under prefix: files first, then folder
// markers, each in listing order.
func (e *Engine) RemoveFolder(ctx context.Context, bucket, prefix string) *Report {
	r := e.begin(OpRemoveFolder, bucket, prefix, "")
	if l, ok := e.collect(ctx, r); ok {
		for _, f := range l.Files {
			e.delete(ctx, r, f, false)
		}
		for _, d := range l.Folders {
			e.delete(ctx, r, d, true)
		}
	}
	return e.finish(r)
}

// CopyFolder copies every file under oldPrefix to the same relative key under
// newPrefix. Folder markers are not copied. Equal prefixes are a no-op.
func (e *Engine) CopyFolder(ctx context.Context, bucket, oldPrefix, newPrefix string) *Report {
	r := e.begin(OpCopyFolder, bucket, oldPrefix, newPrefix)
	if oldPrefix == newPrefix {
		return e.noop(r)
	}
	if l, ok := e.collect(ctx, r); ok {
		for _, f := range l.Files {
			e.copy(ctx, r, f, Destination(f, oldPrefix, newPrefix))
		}
	}
	return e.finish(r)
}

// RenameFolder moves every file under oldPrefix to newPrefix, then deletes
// the folder markers under oldPrefix. Equal prefixes are a no-op.
//
// A file whose copy fails is not deleted.
func (e *Engine) RenameFolder(ctx context.Context, bucket, oldPrefix, newPrefix string) *Report {
	r := e.begin(OpRenameFolder, bucket, oldPrefix, newPrefix)
	if oldPrefix == newPrefix {
		return e.noop(r)
	}
	if l, ok := e.collect(ctx, r); ok {
		for _, f := range l.Files {
			e.move(ctx, r, f, Destination(f, oldPrefix, newPrefix))
		}
		for _, d := range l.Folders {
			e.delete(ctx, r, d, true)
		}
	}
	return e.finish(r)
}

// CopyFile copies oldKey to newKey. Equal keys are a no-op.
func (e *Engine) CopyFile(ctx context.Context, bucket, oldKey, newKey string) *Report {
	r := e.begin(OpCopyFile, bucket, oldKey, newKey)
	if oldKey == newKey {
		return e.noop(r)
	}
	e.copy(ctx, r, oldKey, newKey)
	return e.finish(r)
}

// RenameFile copies oldKey to newKey, then deletes oldKey if the copy
// succeeded. Equal keys are a no-op.
func (e *Engine) RenameFile(ctx context.Context, bucket, oldKey, newKey string) *Report {
	r := e.begin(OpRenameFile, bucket, oldKey, newKey)
	if oldKey == newKey {
		return e.noop(r)
	}
	e.move(ctx, r, oldKey, newKey)
	return e.finish(r)
}

// Destination maps key from oldPrefix to newPrefix. A leading oldPrefix is
// replaced; otherwise the first occurrence is. Keys without an occurrence are
// returned unchanged.
func Destination(key, oldPrefix, newPrefix string) string {
	if strings.HasPrefix(key, oldPrefix) {
		return newPrefix + key[len(oldPrefix):]
	}
	return strings.Replace(key, oldPrefix, newPrefix, 1)
}

func (e *Engine) begin(op, bucket, source, dest string) *Report {
	return &Report{
		OperationID: uuid.NewString(),
		Op:          op,
		Bucket:      bucket,
		Source:      source,
		Destination: dest,
		Started:     time.Now(),
	}
}

func (e *Engine) noop(r *Report) *Report {
	r.Noop = true
	e.logger.Debug("Source and destination are equal, nothing to do",
		zap.String("operation_id", r.OperationID),
		zap.String("op", r.Op),
		zap.String("bucket", r.Bucket),
		zap.String("source", r.Source))
	return e.finish(r)
}

func (e *Engine) finish(r *Report) *Report {
	r.Duration = time.Since(r.Started)
	e.metrics.observeOperation(r)

	fields := []zap.Field{
		zap.String("operation_id", r.OperationID),
		zap.String("op", r.Op),
		zap.String("bucket", r.Bucket),
		zap.String("source", r.Source),
		zap.Int("steps", len(r.Steps)),
		zap.Int("failed", len(r.Failed())),
		zap.Int("skipped", len(r.Skipped())),
		zap.Bool("truncated", r.Truncated),
		zap.Duration("duration", r.Duration),
	}
	if r.Destination != "" {
		fields = append(fields, zap.String("destination", r.Destination))
	}
	e.logger.Info("Folder operation complete", fields...)
	return r
}

// collect lists every entry under the report's source with a flat listing,
// following continuation tokens up to Config.PageLimit pages.
func (e *Engine) collect(ctx context.Context, r *Report) (listing.Listing, bool) {
	var all listing.Listing
	token := ""
	for {
		page, out := e.ListPage(ctx, r.Bucket, ListRequest{Prefix: r.Source, ContinuationToken: token})
		r.List = &out
		if !out.IsSuccess() {
			e.logger.Warn("Listing failed",
				zap.String("operation_id", r.OperationID),
				zap.String("bucket", r.Bucket),
				zap.String("prefix", r.Source),
				zap.Stringer("kind", out.Kind()),
				zap.String("error", out.AnyErrorString()))
			return listing.Listing{}, false
		}
		r.Pages++
		all.Folders = append(all.Folders, page.Folders...)
		all.Files = append(all.Files, page.Files...)

		if !page.IsTruncated {
			return all, true
		}
		if page.NextContinuationToken == "" || (e.config.PageLimit > 0 && r.Pages >= e.config.PageLimit) {
			r.Truncated = true
			e.logger.Warn("Listing truncated, remaining entries not processed",
				zap.String("operation_id", r.OperationID),
				zap.String("bucket", r.Bucket),
				zap.String("prefix", r.Source),
				zap.Int("pages", r.Pages))
			return all, true
		}
		token = page.NextContinuationToken
	}
}

// move copies src to dst and deletes src only when the copy succeeded.
func (e *Engine) move(ctx context.Context, r *Report, src, dst string) {
	if e.copy(ctx, r, src, dst) {
		e.delete(ctx, r, src, false)
		return
	}
	e.record(r, Step{Action: ActionDelete, Source: src, Skipped: true})
}

func (e *Engine) copy(ctx context.Context, r *Report, src, dst string) bool {
	e.logger.Debug("Copy file",
		zap.String("operation_id", r.OperationID),
		zap.String("bucket", r.Bucket),
		zap.String("source", src),
		zap.String("destination", dst))

	var out provider.Outcome
	if err := e.wait(ctx); err != nil {
		out = provider.Call{Op: provider.OpCopy, Bucket: r.Bucket, Key: src}.TransportFailure(err, nil)
	} else {
		out = e.client.Copy(ctx, r.Bucket, src, dst)
	}
	return e.record(r, Step{Action: ActionCopy, Source: src, Destination: dst, Outcome: out})
}

func (e *Engine) delete(ctx context.Context, r *Report, key string, folder bool) bool {
	msg := "Delete file"
	if folder {
		msg = "Delete folder"
	}
	e.logger.Debug(msg,
		zap.String("operation_id", r.OperationID),
		zap.String("bucket", r.Bucket),
		zap.String("key", key))

	var out provider.Outcome
	if err := e.wait(ctx); err != nil {
		out = provider.Call{Op: provider.OpDelete, Bucket: r.Bucket, Key: key}.TransportFailure(err, nil)
	} else {
		out = e.client.Delete(ctx, r.Bucket, key)
	}
	return e.record(r, Step{Action: ActionDelete, Source: key, Folder: folder, Outcome: out})
}

func (e *Engine) record(r *Report, s Step) bool {
	r.Steps = append(r.Steps, s)
	e.metrics.observeStep(s)

	switch {
	case s.Skipped:
		e.logger.Warn("Step skipped",
			zap.String("operation_id", r.OperationID),
			zap.String("action", string(s.Action)),
			zap.String("source", s.Source))
	case !s.Outcome.IsSuccess():
		e.logger.Warn("Step failed",
			zap.String("operation_id", r.OperationID),
			zap.String("action", string(s.Action)),
			zap.String("source", s.Source),
			zap.String("destination", s.Destination),
			zap.Stringer("kind", s.Outcome.Kind()),
			zap.String("error", s.Outcome.AnyErrorString()))
	}
	return s.Succeeded()
}

// wait blocks until the rate limiter allows a primitive call.
// Returns immediately if rate limiting is disabled.
func (e *Engine) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}
