// Package httputil provides HTTP utilities for the registry client.
//
// # Retry
//
// [Retry] re-runs a request function for transient failures only. Callers
// mark an error as transient by wrapping it in [RetryableError]; everything
// else is returned on the first attempt:
//
//	err := httputil.Retry(ctx, httputil.Policy{Attempts: 3, Delay: time.Second}, func() error {
//	    return client.Get(ctx, url, &v)
//	})
//
// The zero [Policy] makes a single attempt, which is what the pipeline uses
// unless the operator asks for retries with --http-attempts.
package httputil
