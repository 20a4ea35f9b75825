package s3

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

const captureMiddlewareID = "NimbusdirCaptureBody"

type captureKey struct{}

// capture holds the body of the last HTTP response for one primitive call.
// Retries overwrite it, so it always reflects the final attempt.
type capture struct {
	mu     sync.Mutex
	status int
	body   []byte
}

func withCapture(ctx context.Context) (context.Context, *capture) {
	c := &capture{}
	return context.WithValue(ctx, captureKey{}, c), c
}

func (c *capture) set(status int, body []byte) {
	c.mu.Lock()
	c.status, c.body = status, body
	c.mu.Unlock()
}

// bytes returns the captured body, or nil when no response was read.
func (c *capture) bytes() []byte {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.body
}

// addCaptureMiddleware registers captureBody as the innermost deserialize
// middleware. APIOptions run after the operation's own middleware, so After
// places it between the transport and the operation deserializer, and every
// retry attempt passes through it.
func addCaptureMiddleware(stack *middleware.Stack) error {
	return stack.Deserialize.Add(captureBody, middleware.After)
}

// captureBody copies the raw response body into the capture carried by the
// context and hands the deserializer an unread copy. Calls without a
// capture pass through untouched.
var captureBody = middleware.DeserializeMiddlewareFunc(captureMiddlewareID, func(
	ctx context.Context, in middleware.DeserializeInput, next middleware.DeserializeHandler,
) (middleware.DeserializeOutput, middleware.Metadata, error) {
	out, md, err := next.HandleDeserialize(ctx, in)
	if err != nil {
		return out, md, err
	}
	cp, ok := ctx.Value(captureKey{}).(*capture)
	if !ok {
		return out, md, nil
	}
	resp, ok := out.RawResponse.(*smithyhttp.Response)
	if !ok || resp.Body == nil {
		return out, md, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return out, md, &smithy.DeserializationError{Err: err}
	}
	cp.set(resp.StatusCode, body)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return out, md, nil
})
