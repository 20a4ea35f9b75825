package provider

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the service-level outcome of a store primitive.
type ErrorKind int

const (
	NoError ErrorKind = iota
	NetworkError
	CredentialsError
	BucketNameInvalidError
	BucketNotFoundError
	ObjectNameInvalidError
	ObjectNotFoundError
	GenericServiceError
	InternalSignatureError
	InternalReplyInitializationError
	InternalError
	UnknownError
)

var kindNames = [...]string{
	NoError:                          "NoError",
	NetworkError:                     "NetworkError",
	CredentialsError:                 "CredentialsError",
	BucketNameInvalidError:           "BucketNameInvalidError",
	BucketNotFoundError:              "BucketNotFoundError",
	ObjectNameInvalidError:           "ObjectNameInvalidError",
	ObjectNotFoundError:              "ObjectNotFoundError",
	GenericServiceError:              "GenericServiceError",
	InternalSignatureError:           "InternalSignatureError",
	InternalReplyInitializationError: "InternalReplyInitializationError",
	InternalError:                    "InternalError",
	UnknownError:                     "UnknownError",
}

// String returns the name of the error kind.
func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return kindNames[k]
}

// Sentinel errors, one per non-success ErrorKind.
var (
	// ErrNetwork indicates the request never produced a service reply.
	ErrNetwork = errors.New("network error")

	// ErrInvalidCredentials indicates authentication or authorization failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrBucketNameInvalid indicates the bucket name was rejected.
	ErrBucketNameInvalid = errors.New("bucket name invalid")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrObjectNameInvalid indicates the object key was rejected.
	ErrObjectNameInvalid = errors.New("object name invalid")

	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrService indicates any other error reported by the store.
	ErrService = errors.New("service error")

	ErrSignature           = errors.New("request signing failed")
	ErrReplyNotInitialized = errors.New("reply not initialized")
	ErrInternal            = errors.New("internal error")
	ErrUnknown             = errors.New("unknown error")
)

// Sentinel returns the sentinel error for the kind, or nil for NoError.
func (k ErrorKind) Sentinel() error {
	switch k {
	case NoError:
		return nil
	case NetworkError:
		return ErrNetwork
	case CredentialsError:
		return ErrInvalidCredentials
	case BucketNameInvalidError:
		return ErrBucketNameInvalid
	case BucketNotFoundError:
		return ErrBucketNotFound
	case ObjectNameInvalidError:
		return ErrObjectNameInvalid
	case ObjectNotFoundError:
		return ErrNotFound
	case GenericServiceError:
		return ErrService
	case InternalSignatureError:
		return ErrSignature
	case InternalReplyInitializationError:
		return ErrReplyNotInitialized
	case InternalError:
		return ErrInternal
	default:
		return ErrUnknown
	}
}

// ProviderError wraps a failed primitive with context.
type ProviderError struct {
	// Op is the operation that failed (e.g., "List", "Copy").
	Op string

	// Provider is the provider type (e.g., "s3").
	Provider ProviderType

	// Bucket is the bucket name, if applicable.
	Bucket string

	// Key is the object key, if applicable.
	Key string

	// Kind is the classified failure.
	Kind ErrorKind

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Provider, e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KindOf reports the ErrorKind carried by err.
// Nil maps to NoError and unclassified errors to UnknownError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return NoError
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for k := NetworkError; k <= UnknownError; k++ {
		if errors.Is(err, k.Sentinel()) {
			return k
		}
	}
	return UnknownError
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsBucketNotFound returns true if the error indicates the bucket does not exist.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsInvalidCredentials returns true if the error indicates authentication failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsNetwork returns true if the error is a transport-level failure.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}
