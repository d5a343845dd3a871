package changesync

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

const (
	defaultRateLimitDelay   = 60 * time.Second
	defaultUnavailableDelay = 30 * time.Second
)

// Classification says whether a failed remote call may succeed if repeated.
type Classification int

const (
	// ClassUnknown is an error of unrecognized shape. It is never retried.
	ClassUnknown Classification = iota
	// ClassRetryable is a transient failure (network, timeout, 5xx, 429).
	ClassRetryable
	// ClassPermanent is a client-side failure the server will keep rejecting.
	ClassPermanent
)

// String returns the classification name.
func (c Classification) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Retryable reports whether the failure should be retried. Unknown fails closed.
func (c Classification) Retryable() bool {
	return c == ClassRetryable
}

// RemoteError is the typed failure produced by remote API clients.
// It carries its classification so the engine never re-parses error text.
type RemoteError struct {
	// StatusCode is the HTTP-like status, zero for transport failures.
	StatusCode int
	Message    string
	// RetryAfter is the server-suggested delay, zero when none was given.
	RetryAfter     time.Duration
	Classification Classification
	Err            error
}

// NewRemoteError classifies a non-success response status.
// A positive retryAfter overrides the default delay suggested for 429 and 503.
func NewRemoteError(statusCode int, message string, retryAfter time.Duration) *RemoteError {
	class, suggested := ClassifyStatus(statusCode)
	if retryAfter > 0 && class == ClassRetryable {
		suggested = retryAfter
	}

	return &RemoteError{
		StatusCode:     statusCode,
		Message:        message,
		RetryAfter:     suggested,
		Classification: class,
	}
}

// NewTransportError wraps a failure that happened before a response was received.
func NewTransportError(err error) *RemoteError {
	return &RemoteError{
		Message:        err.Error(),
		Classification: classifyTransport(err),
		Err:            err,
	}
}

// Error implements error.
func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("remote call failed (%s): %s", e.Classification, e.Message)
	}

	return fmt.Sprintf("remote call failed with status %d (%s): %s", e.StatusCode, e.Classification, e.Message)
}

// Unwrap returns the underlying transport error, if any.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP-like status to a classification and a suggested retry delay.
func ClassifyStatus(code int) (Classification, time.Duration) {
	switch {
	case code == http.StatusTooManyRequests:
		return ClassRetryable, defaultRateLimitDelay
	case code == http.StatusServiceUnavailable:
		return ClassRetryable, defaultUnavailableDelay
	case code >= http.StatusInternalServerError && code <= 599:
		return ClassRetryable, 0
	case code >= http.StatusBadRequest && code < http.StatusInternalServerError:
		return ClassPermanent, 0
	default:
		return ClassUnknown, 0
	}
}

// Classify inspects an error returned by a remote call.
func Classify(err error) Classification {
	if err == nil {
		return ClassUnknown
	}

	var remote *RemoteError
	if errors.As(err, &remote) {
		if remote.Classification != ClassUnknown {
			return remote.Classification
		}
		if remote.StatusCode != 0 {
			class, _ := ClassifyStatus(remote.StatusCode)

			return class
		}
		if remote.Err != nil {
			return classifyTransport(remote.Err)
		}

		return classifyMessage(remote.Message)
	}

	return classifyTransport(err)
}

// SuggestedDelay returns the server-suggested retry delay carried by err.
func SuggestedDelay(err error) (time.Duration, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.RetryAfter > 0 {
		return remote.RetryAfter, true
	}

	return 0, false
}

func classifyTransport(err error) Classification {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassRetryable
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return ClassRetryable
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return ClassPermanent
	}
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostname         x509.HostnameError
		invalidCert      x509.CertificateInvalidError
	)
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostname) || errors.As(err, &invalidCert) {
		return ClassPermanent
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassRetryable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassRetryable
	}

	return classifyMessage(err.Error())
}

var (
	permanentKeywords = []string{"certificate", "x509", "tls handshake", "ssl"}
	retryableKeywords = []string{
		"timeout",
		"timed out",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"econnrefused",
		"econnreset",
		"etimedout",
		"enotfound",
		"no such host",
		"dns",
		"abort",
		"network",
		"unreachable",
		"eof",
	}
)

func classifyMessage(msg string) Classification {
	msg = strings.ToLower(msg)
	for _, kw := range permanentKeywords {
		if strings.Contains(msg, kw) {
			return ClassPermanent
		}
	}
	for _, kw := range retryableKeywords {
		if strings.Contains(msg, kw) {
			return ClassRetryable
		}
	}

	return ClassUnknown
}
