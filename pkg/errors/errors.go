package errors

import "fmt"

// Kind enumerates the closed error taxonomy the console surfaces to callers.
// Every public operation across the broker access layer returns one of these
// instead of an ad-hoc error, so the command mediator can map failures to a
// typed response without inspecting strings.
type Kind string

const (
	KindConfiguration    Kind = "CONFIGURATION_ERROR"
	KindAuthentication   Kind = "AUTHENTICATION_ERROR"
	KindServiceBus       Kind = "SERVICE_BUS"
	KindRateLimited      Kind = "RATE_LIMITED"
	KindTimeout          Kind = "TIMEOUT"
	KindInternal         Kind = "INTERNAL_ERROR"
	KindBulkOperation    Kind = "BULK_OPERATION_FAILED"
	KindCache            Kind = "CACHE_ERROR"
	KindInvalidInput     Kind = "INVALID_INPUT"
	KindEncryptionFailed Kind = "ENCRYPTION_FAILED"
	KindDecryptionFailed Kind = "DECRYPTION_FAILED"
	KindNotFound         Kind = "NOT_FOUND"
	KindLockLost         Kind = "LOCK_LOST"
	KindHandleStale      Kind = "HANDLE_STALE"
)

// AppError is the error type returned across component boundaries. It never
// panics its way out of a package; callers type-switch or use As to recover
// the Kind.
type AppError struct {
	Kind    Kind
	Message string
	Err     error

	// Retryable marks whether the caller may retry the operation as-is.
	Retryable bool

	// RetryAfterSecs is populated for RateLimited errors when the broker/admin
	// API supplied an explicit delay.
	RetryAfterSecs int
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, &AppError{Kind: KindTimeout}) style matching on Kind alone.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an AppError wrapping err (which may be nil).
func New(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// Wrap is a convenience for New(KindInternal, ...) used when a lower layer's
// error has no clearer classification yet.
func Wrap(message string, err error) *AppError {
	return New(KindInternal, message, err)
}

func Configuration(message string, err error) *AppError {
	return New(KindConfiguration, message, err)
}

func Authentication(message string, err error) *AppError {
	return New(KindAuthentication, message, err)
}

func ServiceBus(message string, err error) *AppError {
	return New(KindServiceBus, message, err)
}

func RateLimited(message string, retryAfterSecs int) *AppError {
	return &AppError{Kind: KindRateLimited, Message: message, Retryable: true, RetryAfterSecs: retryAfterSecs}
}

func Timeout(operation string, err error) *AppError {
	return New(KindTimeout, "operation timed out: "+operation, err)
}

func Internal(message string, err error) *AppError {
	return New(KindInternal, message, err)
}

func BulkOperationFailed(message string, err error) *AppError {
	return New(KindBulkOperation, message, err)
}

func Cache(message string, err error) *AppError {
	return New(KindCache, message, err)
}

func InvalidInput(message string) *AppError {
	return New(KindInvalidInput, message, nil)
}

func NotFound(message string, err error) *AppError {
	return New(KindNotFound, message, err)
}

func LockLost(message string) *AppError {
	return New(KindLockLost, message, nil)
}

func HandleStale(message string) *AppError {
	return New(KindHandleStale, message, nil)
}

// Retryable reports whether an arbitrary error (typically an *AppError) is
// safe to retry according to the propagation policy: transient ServiceBus
// and RateLimited errors are retryable; Configuration, Authentication and
// NotFound never are.
func Retryable(err error) bool {
	ae, ok := err.(*AppError)
	if !ok {
		return false
	}
	switch ae.Kind {
	case KindConfiguration, KindAuthentication, KindNotFound, KindHandleStale, KindInvalidInput:
		return false
	case KindRateLimited:
		return true
	default:
		return ae.Retryable
	}
}

// KindOf extracts the Kind of err, defaulting to KindInternal when err is not
// an *AppError.
func KindOf(err error) Kind {
	if ae, ok := err.(*AppError); ok {
		return ae.Kind
	}
	return KindInternal
}
