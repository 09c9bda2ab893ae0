package stream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"beamline/internal/api"
)

// ParameterOptions configures a parameter change subscription.
type ParameterOptions struct {
	// Devices restricts the feed to these device ids. Empty means all.
	Devices []string
	// Names restricts the feed to these parameter names. Empty means all.
	Names []string
	// OnChange, when set, is invoked synchronously for every change before
	// Next returns it.
	OnChange func(api.ParameterChange)
}

// ParameterStream delivers device parameter transitions.
type ParameterStream struct {
	inner *Stream[api.ParameterChange]
	opts  ParameterOptions
}

// StreamParameters opens the parameter change feed.
func (c *Client) StreamParameters(ctx context.Context, opts ParameterOptions) (*ParameterStream, error) {
	values := url.Values{}
	addDeviceFilters(values, opts.Devices)
	for _, name := range opts.Names {
		values.Add("name", name)
	}
	body, err := c.open(ctx, "/api/stream/parameters", values)
	if err != nil {
		return nil, err
	}
	return &ParameterStream{inner: newStream[api.ParameterChange](body), opts: opts}, nil
}

// Next returns the next parameter change.
func (p *ParameterStream) Next() (api.ParameterChange, error) {
	change, err := p.inner.Next()
	if err != nil {
		return api.ParameterChange{}, err
	}
	if p.opts.OnChange != nil {
		p.opts.OnChange(change)
	}
	return change, nil
}

// Watch pulls changes until the stream ends. Clean terminals report nil; a
// failure surfaces as *FailureError.
func (p *ParameterStream) Watch(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			_ = p.Close()
			return err
		}
		if _, err := p.Next(); err != nil {
			if err == ErrEnded || err == ErrClosed {
				return nil
			}
			return err
		}
	}
}

// Close releases the stream.
func (p *ParameterStream) Close() error {
	return p.inner.Close()
}

// OldFloat interprets the previous value as a float64. Parameter values are
// strings on the wire; numeric interpretation can fail.
func OldFloat(change api.ParameterChange) (float64, error) {
	return parseParamFloat(change.Name, change.OldValue)
}

// NewFloat interprets the new value as a float64.
func NewFloat(change api.ParameterChange) (float64, error) {
	return parseParamFloat(change.Name, change.NewValue)
}

func parseParamFloat(name, value string) (float64, error) {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parameter %s value %q is not numeric", name, value)
	}
	return parsed, nil
}
