package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/3leaps/nimbusdir/pkg/provider"
)

// Client implements provider.Client for AWS S3 and S3-compatible storage.
type Client struct {
	api      *s3.Client
	http     aws.HTTPClient
	maxKeys  int
	discover bool
	regions  *regionCache
}

// Ensure Client implements the interfaces.
var (
	_ provider.Client           = (*Client)(nil)
	_ provider.ExistenceChecker = (*Client)(nil)
	_ provider.Locator          = (*Client)(nil)
	_ provider.CacheInvalidator = (*Client)(nil)
)

// New creates a new S3 client with the given configuration.
//
// The client uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg, newHTTPClient(cfg))
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderS3,
			Kind:     loadErrorKind(err),
			Err:      err,
		}
	}

	// Build S3 client options
	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
			o.APIOptions = append(o.APIOptions, addCaptureMiddleware)
		},
	}

	// Custom endpoint for S3-compatible stores
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	c := &Client{
		api:      s3.NewFromConfig(awsCfg, s3Opts...),
		http:     awsCfg.HTTPClient,
		maxKeys:  maxKeys,
		discover: cfg.DiscoverRegion,
	}
	c.regions = newRegionCache(c.lookupLocation, cfg.Timeout)
	return c, nil
}

// newHTTPClient returns the SDK's buildable client so options resolved at
// load time, such as AWS_CA_BUNDLE, can still derive a transport from it.
func newHTTPClient(cfg Config) *awshttp.BuildableClient {
	bc := awshttp.NewBuildableClient()
	if cfg.Timeout > 0 {
		bc = bc.WithTimeout(cfg.Timeout)
	}
	return bc
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config, httpClient *awshttp.BuildableClient) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}

	// Only apply explicit region if user set one in config.
	// Let SDK resolve from env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for long-term credentials)
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	awsCfg.Region = resolveRegion(cfg.Region, cfg.Endpoint, awsCfg.Region)

	return awsCfg, nil
}

// loadErrorKind classifies a failed SDK configuration load. Shared profile
// and credential problems are CredentialsError; anything else, such as an
// unreadable CA bundle, is InternalError.
func loadErrorKind(err error) provider.ErrorKind {
	var (
		notExist config.SharedConfigProfileNotExistError
		load     config.SharedConfigLoadError
		assume   config.SharedConfigAssumeRoleError
		arn      config.CredentialRequiresARNError
		mfa      config.AssumeRoleTokenProviderNotSetError
	)
	switch {
	case errors.As(err, &notExist), errors.As(err, &load), errors.As(err, &assume),
		errors.As(err, &arn), errors.As(err, &mfa):
		return provider.CredentialsError
	default:
		return provider.InternalError
	}
}

// request carries the per-call state shared by every primitive.
type request struct {
	ctx  context.Context
	call provider.Call
	cap  *capture
	opts []func(*s3.Options)
}

func (r *request) ok() provider.Outcome {
	return r.call.Success(r.cap.bytes())
}

func (r *request) fail(err error) provider.Outcome {
	return classify(r.call, err, r.cap.bytes())
}

// begin validates identifiers and prepares capture and region routing.
// When ok is false the returned Outcome is the failure and nothing is sent.
func (c *Client) begin(ctx context.Context, op, bucket, key string, needKey bool) (*request, provider.Outcome, bool) {
	call := provider.Call{Provider: provider.ProviderS3, Op: op, Bucket: bucket, Key: key}
	if bucket == "" {
		return nil, call.ServiceFailure(provider.BucketNameInvalidError, "Bucket name is empty", nil), false
	}
	if needKey && key == "" {
		return nil, call.ServiceFailure(provider.ObjectNameInvalidError, "Object key is empty", nil), false
	}

	r := &request{call: call}
	if c.discover {
		if loc := c.regions.resolve(ctx, call, bucket); loc.IsSuccess() && loc.Value() != "" {
			region := loc.Value()
			r.opts = append(r.opts, func(o *s3.Options) { o.Region = region })
		}
	}
	r.ctx, r.cap = withCapture(ctx)
	return r, provider.Outcome{}, true
}

// List returns one ListObjectsV2 page as the raw ListBucketResult document.
func (c *Client) List(ctx context.Context, bucket string, opts provider.ListOptions) provider.Reply[[]byte] {
	r, out, ok := c.begin(ctx, provider.OpList, bucket, "", false)
	if !ok {
		return provider.NewReply[[]byte](out, nil)
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(int32(clampMaxKeys(opts.MaxKeys, c.maxKeys))),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.Delimiter != "" {
		input.Delimiter = aws.String(opts.Delimiter)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	if _, err := c.api.ListObjectsV2(r.ctx, input, r.opts...); err != nil {
		return provider.NewReply[[]byte](r.fail(err), nil)
	}
	body := r.cap.bytes()
	if body == nil {
		return provider.NewReply[[]byte](r.call.ServiceFailure(provider.InternalError, "list response body was not captured", nil), nil)
	}
	return provider.NewReply(r.ok(), body)
}

// Put uploads content to key.
//
// A Content-Type header is sent through the typed input; every other header
// is added to the request before signing.
func (c *Client) Put(ctx context.Context, bucket, key string, content []byte, headers map[string]string) provider.Outcome {
	r, out, ok := c.begin(ctx, provider.OpPut, bucket, key, true)
	if !ok {
		return out
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	opts := r.opts
	for _, name := range names {
		value := headers[name]
		if strings.EqualFold(name, "Content-Type") {
			input.ContentType = aws.String(value)
			continue
		}
		opts = append(opts, func(o *s3.Options) {
			o.APIOptions = append(o.APIOptions, smithyhttp.AddHeaderValue(name, value))
		})
	}

	if _, err := c.api.PutObject(r.ctx, input, opts...); err != nil {
		return r.fail(err)
	}
	return r.ok()
}

// Get downloads the content of key.
func (c *Client) Get(ctx context.Context, bucket, key string) provider.Reply[[]byte] {
	r, out, ok := c.begin(ctx, provider.OpGet, bucket, key, true)
	if !ok {
		return provider.NewReply[[]byte](out, nil)
	}

	resp, err := c.api.GetObject(r.ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, r.opts...)
	if err != nil {
		return provider.NewReply[[]byte](r.fail(err), nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.NewReply[[]byte](r.call.TransportFailure(err, r.cap.bytes()), nil)
	}
	return provider.NewReply(r.call.Success(body), body)
}

// Size returns the content length of key from a HEAD request.
func (c *Client) Size(ctx context.Context, bucket, key string) provider.Reply[int64] {
	r, out, ok := c.begin(ctx, provider.OpSize, bucket, key, true)
	if !ok {
		return provider.NewReply[int64](out, 0)
	}

	resp, err := c.api.HeadObject(r.ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, r.opts...)
	if err != nil {
		return provider.NewReply[int64](r.fail(err), 0)
	}
	if resp.ContentLength == nil {
		return provider.NewReply[int64](r.call.ServiceFailure(provider.ObjectNotFoundError, "response carries no content length", r.cap.bytes()), 0)
	}
	return provider.NewReply(r.ok(), *resp.ContentLength)
}

// Copy performs a server-side copy of srcKey to dstKey within bucket.
func (c *Client) Copy(ctx context.Context, bucket, srcKey, dstKey string) provider.Outcome {
	r, out, ok := c.begin(ctx, provider.OpCopy, bucket, srcKey, true)
	if !ok {
		return out
	}
	if dstKey == "" {
		return r.call.ServiceFailure(provider.ObjectNameInvalidError, "Destination key is empty", nil)
	}

	_, err := c.api.CopyObject(r.ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(bucket, srcKey)),
	}, r.opts...)
	if err != nil {
		return r.fail(err)
	}
	return r.ok()
}

// Delete removes key. Deleting a missing key succeeds, as S3 reports it.
func (c *Client) Delete(ctx context.Context, bucket, key string) provider.Outcome {
	r, out, ok := c.begin(ctx, provider.OpDelete, bucket, key, true)
	if !ok {
		return out
	}

	_, err := c.api.DeleteObject(r.ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, r.opts...)
	if err != nil {
		return r.fail(err)
	}
	return r.ok()
}

// Exists reports whether key is present. A missing object is a successful
// reply with value false.
func (c *Client) Exists(ctx context.Context, bucket, key string) provider.Reply[bool] {
	size := c.Size(ctx, bucket, key)
	call := size.Call()
	call.Op = provider.OpExists
	switch {
	case size.IsSuccess():
		return provider.NewReply(call.Success(size.Payload()), true)
	case size.Kind() == provider.ObjectNotFoundError:
		return provider.NewReply(call.Success(size.Payload()), false)
	default:
		return provider.NewReply(size.Outcome, false)
	}
}

// Location returns the bucket's region. Results are cached until
// InvalidateCaches.
func (c *Client) Location(ctx context.Context, bucket string) provider.Reply[string] {
	call := provider.Call{Provider: provider.ProviderS3, Op: provider.OpLocation, Bucket: bucket}
	if bucket == "" {
		return provider.NewReply(call.ServiceFailure(provider.BucketNameInvalidError, "Bucket name is empty", nil), "")
	}
	return c.regions.resolve(ctx, call, bucket)
}

// InvalidateCaches drops every cached bucket region.
func (c *Client) InvalidateCaches() {
	c.regions.invalidate()
}

// Close releases idle connections held by the HTTP client.
func (c *Client) Close() error {
	if ci, ok := c.http.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
	return nil
}

func (c *Client) lookupLocation(ctx context.Context, bucket string) provider.Reply[string] {
	call := provider.Call{Provider: provider.ProviderS3, Op: provider.OpLocation, Bucket: bucket}
	cctx, cp := withCapture(ctx)
	r := &request{ctx: cctx, call: call, cap: cp}

	resp, err := c.api.GetBucketLocation(r.ctx, &s3.GetBucketLocationInput{Bucket: aws.String(bucket)})
	if err != nil {
		return provider.NewReply(r.fail(err), "")
	}
	return provider.NewReply(r.ok(), normalizeLocation(resp.LocationConstraint))
}

// normalizeLocation maps a location constraint to a region name.
// S3 reports us-east-1 as an empty constraint and eu-west-1 as the legacy "EU".
func normalizeLocation(lc types.BucketLocationConstraint) string {
	switch lc {
	case "":
		return DefaultAWSRegion
	case types.BucketLocationConstraintEu:
		return "eu-west-1"
	default:
		return string(lc)
	}
}

// copySource builds the x-amz-copy-source value: the bucket followed by the
// key with every path segment escaped.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

// classify converts an SDK error into a failed Outcome.
//
// Errors carrying an S3 error code are service failures. Credential and
// signing failures happen before anything is sent and get their own kinds.
// Everything else never produced a usable reply and is a transport failure.
func classify(call provider.Call, err error, payload []byte) provider.Outcome {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return call.ServiceFailure(provider.BucketNotFoundError, apiMessage(apiErr), payload)
		case "NoSuchKey", "NotFound":
			return call.ServiceFailure(provider.ObjectNotFoundError, apiMessage(apiErr), payload)
		case "InvalidBucketName":
			return call.ServiceFailure(provider.BucketNameInvalidError, apiMessage(apiErr), payload)
		case "KeyTooLongError":
			return call.ServiceFailure(provider.ObjectNameInvalidError, apiMessage(apiErr), payload)
		case "InvalidAccessKeyId", "AccessDenied", "ExpiredToken", "InvalidToken":
			return call.ServiceFailure(provider.CredentialsError, apiMessage(apiErr), payload)
		case "SignatureDoesNotMatch":
			return call.ServiceFailure(provider.InternalSignatureError, apiMessage(apiErr), payload)
		default:
			return call.ServiceFailure(provider.GenericServiceError,
				fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()), payload)
		}
	}

	// Fallback: failures raised by the SDK before the request is sent
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "failed to retrieve credentials"), strings.Contains(errMsg, "no EC2 IMDS role found"):
		return call.ServiceFailure(provider.CredentialsError, errMsg, payload)
	case strings.Contains(errMsg, "failed to sign request"), strings.Contains(errMsg, "failed to compute payload sha256"):
		return call.ServiceFailure(provider.InternalSignatureError, errMsg, payload)
	}

	return call.TransportFailure(err, payload)
}

func apiMessage(err smithy.APIError) string {
	if err == nil {
		return ""
	}
	if msg := err.ErrorMessage(); msg != "" {
		return msg
	}
	return err.ErrorCode()
}

// clampMaxKeys applies defaults and limits to maxKeys values.
// If requested is <= 0, uses providerDefault. Result is clamped to MaxAllowedKeys.
func clampMaxKeys(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// resolveRegion determines the final region to use after SDK config loading.
//
// The sdkRegion parameter is the region after SDK loading, which already
// incorporates explicit cfgRegion (if set) or env/profile resolution.
//
// This function only applies the fallback default:
//   - If sdkRegion is still empty AND no custom endpoint, default to us-east-1
//   - For S3-compatible stores (endpoint set), no defaulting occurs
func resolveRegion(cfgRegion, endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}
