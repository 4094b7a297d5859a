package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// ErrTransient marks an error as a temporary connectivity failure. Wrap it
// with fmt.Errorf("...: %w", ErrTransient) to make IsTransient report true.
var ErrTransient = errors.New("transient failure")

// IsTransient reports whether err is a connectivity failure worth one retry:
// connection reset, refused or aborted, broken pipes, generic I/O errors,
// truncated reads and network errors. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	for _, errno := range []syscall.Errno{
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		syscall.ECONNABORTED,
		syscall.EPIPE,
		syscall.EIO,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// RetryOnce calls fn and, if it fails with a transient error, waits backoff
// and calls it a second time. onRetry, when not nil, is invoked with the first
// error before sleeping. Non-transient errors are returned immediately.
func RetryOnce[T any](
	ctx context.Context,
	backoff time.Duration,
	onRetry func(error),
	fn func(context.Context) (T, error),
) (T, error) {
	v, err := fn(ctx)
	if err == nil || !IsTransient(err) {
		return v, err
	}
	if onRetry != nil {
		onRetry(err)
	}

	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	v, err = fn(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed after retry: %w", err)
	}
	return v, nil
}
