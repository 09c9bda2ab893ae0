package stream

import (
	"context"
	"net/url"

	"beamline/internal/api"
)

// DeviceStateOptions configures a device state subscription.
type DeviceStateOptions struct {
	// Devices restricts the feed to these device ids. Empty means all.
	Devices []string
	// MaxRateHz caps per-device update delivery. Faster updates are merged
	// server-side. Zero means unlimited.
	MaxRateHz int
	// IncludeSnapshot requests a full-state snapshot as the first events of
	// the stream, before any deltas.
	IncludeSnapshot bool
	// OnUpdate, when set, is invoked synchronously for every update before
	// Next returns it.
	OnUpdate func(api.DeviceStateUpdate)
}

// DeviceStateStream delivers device state snapshots and deltas.
type DeviceStateStream struct {
	inner *Stream[api.DeviceStateUpdate]
	opts  DeviceStateOptions
}

// StreamDeviceState opens the device state feed.
func (c *Client) StreamDeviceState(ctx context.Context, opts DeviceStateOptions) (*DeviceStateStream, error) {
	values := url.Values{}
	addDeviceFilters(values, opts.Devices)
	setPositiveInt(values, "max_rate_hz", opts.MaxRateHz)
	setBool(values, "snapshot", opts.IncludeSnapshot)
	body, err := c.open(ctx, "/api/stream/devices", values)
	if err != nil {
		return nil, err
	}
	return &DeviceStateStream{inner: newStream[api.DeviceStateUpdate](body), opts: opts}, nil
}

// Next returns the next update. Snapshot events, when requested, arrive
// before any delta and carry IsSnapshot.
func (d *DeviceStateStream) Next() (api.DeviceStateUpdate, error) {
	update, err := d.inner.Next()
	if err != nil {
		return api.DeviceStateUpdate{}, err
	}
	if d.opts.OnUpdate != nil {
		d.opts.OnUpdate(update)
	}
	return update, nil
}

// Watch pulls updates until the stream ends. Clean terminals report nil; a
// failure surfaces as *FailureError.
func (d *DeviceStateStream) Watch(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			_ = d.Close()
			return err
		}
		if _, err := d.Next(); err != nil {
			if err == ErrEnded || err == ErrClosed {
				return nil
			}
			return err
		}
	}
}

// Close releases the stream.
func (d *DeviceStateStream) Close() error {
	return d.inner.Close()
}
