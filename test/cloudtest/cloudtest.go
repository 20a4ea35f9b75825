// Package cloudtest provides fixtures for integration tests against a local
// moto S3 endpoint. Tests using it are tagged //go:build cloudintegration.
//
// Every test gets its own bucket from CreateBucket, so packages can run
// concurrently against one moto server. Fixtures are written and read with a
// plain SDK client, never through the nimbusdir client under test:
//
//	func TestRenameFolder(t *testing.T) {
//	    cloudtest.SkipIfUnavailable(t)
//	    bucket := cloudtest.CreateBucket(t, ctx)
//	    cloudtest.PutObjects(t, ctx, bucket, []string{"old/x.txt", "old/sub/"})
//	    e := folder.New(cloudtest.NewClient(t, ctx), folder.DefaultConfig())
//	    // ... rename, then assert with cloudtest.ListKeys ...
//	}
package cloudtest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	nimbuss3 "github.com/3leaps/nimbusdir/pkg/provider/s3"
)

const (
	// DefaultEndpoint is the moto server address. Port 5555 avoids the
	// macOS AirPlay receiver on 5000.
	DefaultEndpoint = "http://localhost:5555"

	// DefaultRegion is the region fixtures are created in.
	DefaultRegion = "us-east-1"

	// moto accepts any static credentials.
	accessKeyID     = "testing"
	secretAccessKey = "testing"
)

var (
	// Endpoint is the moto server address, overridable with MOTO_ENDPOINT.
	Endpoint = envOr("MOTO_ENDPOINT", DefaultEndpoint)

	// Region is the fixture region, overridable with MOTO_REGION.
	Region = envOr("MOTO_REGION", DefaultRegion)

	fixtureOnce   sync.Once
	fixtureClient *s3.Client
	fixtureErr    error
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Available reports whether the moto management API answers.
func Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"/moto-api/", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// SkipIfUnavailable skips t when moto is not running.
func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skipf("moto server not available at %s (start with: make moto-start)", Endpoint)
	}
}

// ClientConfig returns the nimbusdir S3 client configuration for moto.
func ClientConfig() nimbuss3.Config {
	return nimbuss3.Config{
		Endpoint:        Endpoint,
		Region:          Region,
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		ForcePathStyle:  true,
	}
}

// NewClient returns a nimbusdir S3 client pointed at moto and closed with t.
func NewClient(t *testing.T, ctx context.Context) *nimbuss3.Client {
	t.Helper()
	c, err := nimbuss3.New(ctx, ClientConfig())
	if err != nil {
		t.Fatalf("create nimbusdir client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// fixtures returns the shared SDK client used to seed and inspect buckets.
func fixtures(t *testing.T) *s3.Client {
	t.Helper()
	fixtureOnce.Do(func() {
		cfg, err := config.LoadDefaultConfig(context.Background(),
			config.WithRegion(Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		)
		if err != nil {
			fixtureErr = fmt.Errorf("load config: %w", err)
			return
		}
		fixtureClient = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(Endpoint)
			o.UsePathStyle = true
		})
	})
	if fixtureErr != nil {
		t.Fatalf("create fixture client: %v", fixtureErr)
	}
	return fixtureClient
}

// bucketName derives a valid, unique bucket name from the test name.
func bucketName(t *testing.T) string {
	name := strings.NewReplacer("/", "-", "_", "-", " ", "-").Replace(strings.ToLower(t.Name()))
	if len(name) > 50 {
		name = name[:50]
	}
	return fmt.Sprintf("%s-%d", strings.Trim(name, "-"), time.Now().UnixNano()%100000)
}

// CreateBucket creates a bucket for t and empties and removes it on cleanup.
func CreateBucket(t *testing.T, ctx context.Context) string {
	t.Helper()
	c := fixtures(t)
	name := bucketName(t)

	if _, err := c.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)}); err != nil {
		t.Fatalf("create bucket %s: %v", name, err)
	}
	t.Cleanup(func() { dropBucket(t, name) })
	return name
}

// dropBucket deletes every object and then the bucket. Failures are logged
// so cleanup never masks the test result.
func dropBucket(t *testing.T, bucket string) {
	ctx := context.Background()
	c := fixtures(t)

	keys, err := listKeys(ctx, c, bucket)
	if err != nil {
		t.Logf("cleanup: list %s: %v", bucket, err)
		return
	}
	for _, key := range keys {
		if _, err := c.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
			t.Logf("cleanup: delete %s/%s: %v", bucket, key, err)
		}
	}
	if _, err := c.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Logf("cleanup: delete bucket %s: %v", bucket, err)
	}
}

// PutObjects seeds keys whose content is "test content for <key>".
func PutObjects(t *testing.T, ctx context.Context, bucket string, keys []string) {
	t.Helper()
	objects := make(map[string][]byte, len(keys))
	for _, key := range keys {
		objects[key] = []byte("test content for " + key)
	}
	PutObjectsWithContent(t, ctx, bucket, objects)
}

// PutObjectsWithContent seeds objects with the given bodies.
func PutObjectsWithContent(t *testing.T, ctx context.Context, bucket string, objects map[string][]byte) {
	t.Helper()
	c := fixtures(t)
	for key, content := range objects {
		_, err := c.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(content),
		})
		if err != nil {
			t.Fatalf("put %s/%s: %v", bucket, key, err)
		}
	}
}

// ListKeys returns every key in bucket, in store order.
func ListKeys(t *testing.T, ctx context.Context, bucket string) []string {
	t.Helper()
	keys, err := listKeys(ctx, fixtures(t), bucket)
	if err != nil {
		t.Fatalf("list %s: %v", bucket, err)
	}
	return keys
}

func listKeys(ctx context.Context, c *s3.Client, bucket string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(c, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}
