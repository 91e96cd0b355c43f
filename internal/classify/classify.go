// Package classify turns raw transport and HTTP failures into typed errors.
package classify

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/eshaffer321/fleetclient-go/internal/types"
)

// Kind maps a transport error or HTTP status to an error kind.
// A non-nil err takes precedence over status.
func Kind(err error, status int) types.ErrorKind {
	if err != nil {
		switch {
		case isTimeout(err):
			return types.KindTimeout
		case isNetwork(err):
			return types.KindNetwork
		}
		return types.KindUnknown
	}

	switch {
	case status == http.StatusUnauthorized:
		return types.KindAuthExpired
	case status == http.StatusForbidden:
		return types.KindForbidden
	case status == http.StatusTooManyRequests:
		return types.KindRateLimited
	case status >= 500 && status <= 599:
		return types.KindServer
	case status >= 400 && status <= 499:
		return types.KindClient
	}
	return types.KindUnknown
}

// New builds the ClassifiedError for one failed attempt using the default locale
func New(rc types.RequestContext, err error, status int, body []byte, at time.Time) *types.ClassifiedError {
	return defaultLocalizer.New(rc, err, status, body, at)
}

// New builds the ClassifiedError for one failed attempt
func (l *Localizer) New(rc types.RequestContext, err error, status int, body []byte, at time.Time) *types.ClassifiedError {
	kind := Kind(err, status)

	ce := &types.ClassifiedError{
		Kind:       kind,
		Retryable:  kind.Retryable(),
		HTTPStatus: status,
		Message:    l.UserMessage(kind, status),
		Endpoint:   rc.URL,
		Method:     rc.Method,
		RetryCount: rc.RetryCount,
		Timestamp:  at,
		Err:        err,
	}

	if err != nil {
		ce.Detail = err.Error()
	} else {
		ce.Detail = describeHTTPError(status, body)
	}
	return ce
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetwork(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
