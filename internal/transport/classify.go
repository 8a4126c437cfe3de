// ABOUTME: Maps low-level network errors to transport failure reasons
// ABOUTME: Distinguishes refused connections, TLS failures, timeouts and cancellation

package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"

	apierrors "github.com/harper/ksc-bridge/internal/errors"
)

func classify(ctx context.Context, err error) apierrors.TransportReason {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return apierrors.ReasonCanceled
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apierrors.ReasonTimeout
	case isTLSError(err):
		return apierrors.ReasonTLS
	case errors.Is(err, syscall.ECONNREFUSED):
		return apierrors.ReasonRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierrors.ReasonTimeout
	}
	return apierrors.ReasonNetwork
}

func isTLSError(err error) bool {
	var (
		recordErr   tls.RecordHeaderError
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}
