// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages.
package httputil

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// DefaultRetryBaseDelay is the base duration for exponential backoff when
// the caller does not supply one. Tests pass a small delay to avoid real
// sleeps.
const DefaultRetryBaseDelay = 2 * time.Second

const defaultMaxAttempts = 3

// retryableStatus reports whether an HTTP status is worth another attempt:
// rate limiting and server-side failures.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// DoWithRetry executes an HTTP request, retrying transport errors, HTTP 429,
// and 5xx responses with exponential backoff (baseDelay x 2^attempt).
// maxAttempts is the total number of attempts; 0 selects the default (3).
// A zero baseDelay selects DefaultRetryBaseDelay.
//
// Requests with a body must carry GetBody (http.NewRequest sets it for the
// common reader types) so the body can be replayed. Before each retry the
// previous response body is drained and closed. If the context is cancelled
// during a backoff wait the function returns ctx.Err(). After the final
// attempt the last response or error is returned as-is so the caller can
// inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxAttempts int, baseDelay time.Duration) (*http.Response, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultRetryBaseDelay
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * baseDelay
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("replaying request body: %w", err)
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		if err != nil {
			lastErr = err
			continue
		}

		if !retryableStatus(resp.StatusCode) || attempt == maxAttempts-1 {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return nil, fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}
