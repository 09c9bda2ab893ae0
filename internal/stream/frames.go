package stream

import (
	"context"
	"net/url"
	"sync/atomic"

	"beamline/internal/api"
	"beamline/internal/pixels"
)

// FrameOptions configures a frame feed subscription.
type FrameOptions struct {
	// Devices restricts the feed to these camera ids. Empty means all.
	Devices []string
	// IncludePixelData requests raw pixel bytes with each frame. Without it
	// frames carry metadata only.
	IncludePixelData bool
	// MaxFrames ends the stream after this many frames. Zero means unbounded.
	MaxFrames int
	// OnFrame, when set, is invoked synchronously for every frame before
	// Next returns it. Watch consumes through Next, so both paths see it.
	OnFrame func(api.Frame)
}

// FrameStream delivers camera frames and tracks how many arrived.
type FrameStream struct {
	inner *Stream[api.Frame]
	opts  FrameOptions
	count atomic.Uint64
}

// StreamFrames opens the camera frame feed.
func (c *Client) StreamFrames(ctx context.Context, opts FrameOptions) (*FrameStream, error) {
	values := url.Values{}
	addDeviceFilters(values, opts.Devices)
	setBool(values, "pixel_data", opts.IncludePixelData)
	body, err := c.open(ctx, "/api/stream/frames", values)
	if err != nil {
		return nil, err
	}
	return &FrameStream{inner: newStream[api.Frame](body), opts: opts}, nil
}

// Next returns the next frame. When MaxFrames is set, the stream closes
// itself after delivering the final frame; the following call reports
// ErrClosed.
func (f *FrameStream) Next() (api.Frame, error) {
	frame, err := f.inner.Next()
	if err != nil {
		return api.Frame{}, err
	}
	seen := f.count.Add(1)
	if f.opts.MaxFrames > 0 && seen >= uint64(f.opts.MaxFrames) {
		_ = f.inner.Close()
	}
	if f.opts.OnFrame != nil {
		f.opts.OnFrame(frame)
	}
	return frame, nil
}

// Watch pulls frames until the stream ends. The ErrEnded and ErrClosed
// terminals are reported as nil; a failure surfaces as *FailureError.
func (f *FrameStream) Watch(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			_ = f.Close()
			return err
		}
		if _, err := f.Next(); err != nil {
			if err == ErrEnded || err == ErrClosed {
				return nil
			}
			return err
		}
	}
}

// FrameCount reports how many frames this stream has delivered.
func (f *FrameStream) FrameCount() uint64 {
	return f.count.Load()
}

// Close releases the stream.
func (f *FrameStream) Close() error {
	return f.inner.Close()
}

// DecodeFrame converts a frame's pixel payload into a float64 image.
func DecodeFrame(frame api.Frame) (pixels.Image, error) {
	return pixels.Decode(frame.PixelData, frame.Width, frame.Height, frame.PixelFormat)
}
