package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"beamline/internal/api"
)

// Client opens telemetry feeds against the daemon's HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for the given API bind address, e.g.
// "127.0.0.1:7419". token may be empty when the daemon requires none.
func NewClient(bind, token string) (*Client, error) {
	trimmed := strings.TrimSpace(bind)
	if trimmed == "" {
		return nil, fmt.Errorf("stream: api bind address is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	base, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("stream: parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	// No overall timeout: feeds are open-ended. Callers bound lifetimes with
	// the context passed to the open calls.
	return &Client{
		base:  base,
		token: token,
		http:  &http.Client{},
	}, nil
}

func (c *Client) open(ctx context.Context, path string, values url.Values) (io.ReadCloser, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-ndjson")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var failure api.StreamError
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&failure); decodeErr == nil && failure.Error != "" {
			return nil, fmt.Errorf("open %s: %s (status %d)", path, failure.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("open %s: status %d", path, resp.StatusCode)
	}
	return resp.Body, nil
}

// DaemonStatus fetches a one-shot daemon status document.
func (c *Client) DaemonStatus(ctx context.Context) (api.DaemonStatus, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	body, err := c.open(reqCtx, "/api/status", nil)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	defer body.Close()
	var status api.DaemonStatus
	if err := json.NewDecoder(body).Decode(&status); err != nil {
		return api.DaemonStatus{}, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}

// StreamStatus opens the periodic system status feed.
func (c *Client) StreamStatus(ctx context.Context) (*Stream[api.StatusSnapshot], error) {
	body, err := c.open(ctx, "/api/stream/status", nil)
	if err != nil {
		return nil, err
	}
	return newStream[api.StatusSnapshot](body), nil
}

// StreamMeasurements opens the measurement feed, optionally restricted to
// the named instruments.
func (c *Client) StreamMeasurements(ctx context.Context, instruments ...string) (*Stream[api.MeasurementSample], error) {
	values := url.Values{}
	for _, id := range instruments {
		values.Add("instrument", id)
	}
	body, err := c.open(ctx, "/api/stream/measurements", values)
	if err != nil {
		return nil, err
	}
	return newStream[api.MeasurementSample](body), nil
}

func addDeviceFilters(values url.Values, ids []string) {
	for _, id := range ids {
		values.Add("device", id)
	}
}

func setBool(values url.Values, key string, on bool) {
	if on {
		values.Set(key, "1")
	}
}

func setPositiveInt(values url.Values, key string, n int) {
	if n > 0 {
		values.Set(key, strconv.Itoa(n))
	}
}
