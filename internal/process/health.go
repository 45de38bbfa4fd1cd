package process

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPHealthCheck returns a HealthCheckFunc that GETs url and accepts any
// 2xx response. A nil client uses one with a 5 second timeout.
func HTTPHealthCheck(url string, client *http.Client) func(ctx context.Context) error {
	if client == nil {
		client = &http.Client{Timeout: healthCheckTimeout}
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("building health request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("health request: %w", err)
		}
		defer resp.Body.Close()
		//nolint:errcheck // drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
		}
		return nil
	}
}
