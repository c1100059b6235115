package httpx

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

// TrustError reports a TLS chain rejected by every configured trust anchor.
// It blocks the request and carries the last rejection reason.
type TrustError struct {
	Err error
}

func (e *TrustError) Error() string {
	return fmt.Sprintf("tls trust rejected: %v", e.Err)
}

func (e *TrustError) Unwrap() error { return e.Err }

// NetworkError reports a transport-level failure: unreachable host, malformed
// base URL, timeout. It is transient from the caller's point of view.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Classify wraps a transport error into the TrustError/NetworkError taxonomy.
// nil passes through.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var trustErr *TrustError
	if errors.As(err, &trustErr) {
		return trustErr
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return &TrustError{Err: err}
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return &TrustError{Err: err}
	}
	var hostname x509.HostnameError
	if errors.As(err, &hostname) {
		return &TrustError{Err: err}
	}
	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &certInvalid) {
		return &TrustError{Err: err}
	}

	return &NetworkError{Err: err}
}
