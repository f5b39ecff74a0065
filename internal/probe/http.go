package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"pulseflow/internal/model"
)

// HTTPResult is the outcome of a liveness check, possibly after several attempts.
type HTTPResult struct {
	Status         string
	ResponseTimeMs int64
	StatusCode     int
	Error          string
	Attempts       int
}

func (r HTTPResult) Up() bool { return r.Status == model.ProbeUp }

type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPProber returns a prober whose requests never follow redirects, so a
// 3xx answer is observed and counted as alive.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProber{
		timeout: timeout,
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Check issues one GET bounded by timeout; timeout <= 0 uses the prober default.
func (p *HTTPProber) Check(ctx context.Context, url string, timeout time.Duration) HTTPResult {
	if timeout <= 0 {
		timeout = p.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HTTPResult{Status: model.ProbeDown, Error: fmt.Sprintf("create request: %v", err), Attempts: 1}
	}
	req.Header.Set("User-Agent", "pulseflow-probe/1.0")

	resp, err := p.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return HTTPResult{
			Status:         model.ProbeDown,
			ResponseTimeMs: elapsed,
			Error:          fmt.Sprintf("request failed: %v", err),
			Attempts:       1,
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	result := HTTPResult{
		Status:         model.ProbeUp,
		ResponseTimeMs: elapsed,
		StatusCode:     resp.StatusCode,
		Attempts:       1,
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		result.Status = model.ProbeDown
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return result
}

// CheckWithRetry makes up to attempts checks, sleeping delay between them, and
// stops at the first UP. Only the final result is returned.
func (p *HTTPProber) CheckWithRetry(ctx context.Context, url string, timeout time.Duration, attempts int, delay time.Duration) HTTPResult {
	if attempts < 1 {
		attempts = 1
	}

	var result HTTPResult
	for i := 1; i <= attempts; i++ {
		result = p.Check(ctx, url, timeout)
		result.Attempts = i
		if result.Up() || i == attempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			break
		}
	}
	return result
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
