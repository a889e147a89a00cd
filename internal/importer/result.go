package importer

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// Result is the outcome of one batch: either a job id or a classified failure
type Result struct {
	JobID     string
	Err       error
	Retryable bool
}

// Succeeded returns a Result carrying jobID
func Succeeded(jobID string) Result {
	return Result{JobID: jobID}
}

// Failed returns a Result carrying err and its classification. ctx is the
// caller's context: once it is done no failure is retryable.
func Failed(ctx context.Context, err error) Result {
	return Result{Err: err, Retryable: ShouldRetry(ctx, err)}
}

// OK reports whether a job was created
func (r Result) OK() bool {
	return r.Err == nil && r.JobID != ""
}

// jobQuotaExceeded is the registry error code for a job rejected because
// another import or export job is still active
const jobQuotaExceeded = "JobQuotaExceeded"

// ShouldRetry classifies err against the caller's context. A done ctx makes
// every failure fatal; otherwise IsRetryable decides.
func ShouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return IsRetryable(err)
}

// IsRetryable reports whether a failure may succeed on a later attempt.
// Throttling, a busy job queue, request timeouts, server errors and
// transport errors are retryable. Validation errors, other client errors
// and cancellation are not. A deadline here comes from a per-request
// timeout; use ShouldRetry to account for the caller's own deadline.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.ErrorCode == jobQuotaExceeded,
			respErr.StatusCode == http.StatusConflict,
			respErr.StatusCode == http.StatusRequestTimeout,
			respErr.StatusCode == http.StatusTooManyRequests,
			respErr.StatusCode >= http.StatusInternalServerError:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
