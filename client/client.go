package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pulseflow/internal/buffer"
	"pulseflow/internal/dto/resp"
	"pulseflow/pkg/logger"

	"go.uber.org/zap"
)

var ErrUnauthorized = errors.New("pulseflow: unauthorized")

// APIError is a non-2xx answer from the admin API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pulseflow: status %d: %s", e.Status, e.Message)
}

// PulseClient talks to the operator endpoints of a pulseflow server.
type PulseClient struct {
	addr       string
	token      string
	httpClient *http.Client
}

func NewPulseClient(addr, token string) *PulseClient {
	return &PulseClient{
		addr:       strings.TrimRight(addr, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Reload asks the server to rebuild its task set from the current service list.
func (c *PulseClient) Reload(ctx context.Context) ([]resp.TaskItem, error) {
	var out resp.ReloadResponse
	if err := c.do(ctx, http.MethodPost, "/v1/admin/scheduler/reload", nil, &out); err != nil {
		return nil, err
	}
	logger.Info("scheduler reloaded", zap.String("addr", c.addr), zap.Int("tasks", len(out.Tasks)))
	return out.Tasks, nil
}

func (c *PulseClient) Tasks(ctx context.Context) (*resp.TaskStatusResponse, error) {
	var out resp.TaskStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/admin/scheduler/tasks", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *PulseClient) Ticks(ctx context.Context, since int64) (*resp.TicksResponse, error) {
	q := url.Values{"since": {strconv.FormatInt(since, 10)}}
	var out resp.TicksResponse
	if err := c.do(ctx, http.MethodGet, "/v1/admin/scheduler/ticks", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *PulseClient) History(ctx context.Context, page, size int) (*resp.HistoryResponse, error) {
	q := url.Values{"page": {strconv.Itoa(page)}, "size": {strconv.Itoa(size)}}
	var out resp.HistoryResponse
	if err := c.do(ctx, http.MethodGet, "/v1/admin/notifications", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WatchTicks polls the tick log every interval and hands each new record to fn
// in order until ctx is done. Transport errors back off with jitter up to 30s.
// An unauthorized answer ends the watch.
func (c *PulseClient) WatchTicks(ctx context.Context, since int64, interval time.Duration, fn func(buffer.TickRecord)) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second
	for {
		res, err := c.Ticks(ctx, since)
		wait := interval
		switch {
		case err == nil:
			backoff = time.Second
			if !res.Complete {
				logger.Warn("tick log overflowed, some ticks were missed", zap.Int64("since", since))
			}
			for _, rec := range res.Ticks {
				fn(rec)
				since = rec.Seq
			}
			if res.LastSeq > since {
				since = res.LastSeq
			}
		case errors.Is(err, ErrUnauthorized), ctx.Err() != nil:
			return err
		default:
			wait = backoff + time.Duration(rand.Int63n(int64(backoff/2)))
			logger.Warn("tick poll failed", zap.Error(err), zap.Duration("retry_in", wait))
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *PulseClient) do(ctx context.Context, method, path string, query url.Values, out any) error {
	u := c.addr + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pulseflow %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: status %d", ErrUnauthorized, res.StatusCode)
	}
	if res.StatusCode/100 != 2 {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		if json.Unmarshal(raw, &body) != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: res.StatusCode, Message: body.Error}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		logger.Error("failed to decode admin response", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}
