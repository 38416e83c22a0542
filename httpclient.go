package pgbus

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// workerClient posts message bodies to worker endpoints. Transport-level
// failures are indistinguishable from worker errors to the retry machinery,
// so they are normalized to a synthetic 500.
type workerClient struct {
	httpClient *http.Client
	timeout    time.Duration
}

func newWorkerClient(timeout time.Duration) *workerClient {
	return &workerClient{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		timeout: timeout,
	}
}

// Post sends body to the endpoint and returns the response status code. DNS
// failures, refused connections, TLS errors and timeouts all return 500.
func (c *workerClient) Post(ctx context.Context, endpoint string, body []byte) int {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return http.StatusInternalServerError
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return http.StatusInternalServerError
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode
}
