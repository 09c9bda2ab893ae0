package devices

import (
	"context"
	"math"
	"time"

	"beamline/internal/api"
	"beamline/internal/logging"
	"beamline/internal/pixels"
)

func rateInterval(rateHz float64) time.Duration {
	return time.Duration(float64(time.Second) / rateHz)
}

func (r *Registry) runDetector(ctx context.Context, dev *Device) {
	defer r.wg.Done()
	ticker := time.NewTicker(rateInterval(dev.RateHz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.sampleDetector(dev, now)
		}
	}
}

func (r *Registry) runCamera(ctx context.Context, dev *Device) {
	defer r.wg.Done()
	ticker := time.NewTicker(rateInterval(dev.RateHz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.captureFrame(dev, now)
		}
	}
}

// sampleDetector produces one simulated reading, records it on the device,
// and publishes it on the measurements feed.
func (r *Registry) sampleDetector(dev *Device, now time.Time) float64 {
	t := float64(now.UnixNano()) / float64(time.Second)
	value := 1.0 + 0.5*math.Sin(2*math.Pi*0.2*t) + 0.05*math.Sin(2*math.Pi*13*t)
	dev.recordReading(value)

	r.hub.Measurements.Publish(api.MeasurementSample{
		Instrument:  dev.ID,
		TimestampNS: now.UnixNano(),
		Payload:     api.ScalarValue(value),
	})
	return value
}

// captureFrame renders one simulated frame and publishes it on both the frame
// feed and the measurements feed.
func (r *Registry) captureFrame(dev *Device, now time.Time) {
	number := dev.nextFrameNumber()
	img := renderPattern(dev.Width, dev.Height, number)
	data, err := pixels.Encode(img, dev.PixelFormat)
	if err != nil {
		r.logger.Error("frame encode failed",
			logging.String(logging.FieldDevice, dev.ID),
			logging.Error(err))
		return
	}

	r.hub.Frames.Publish(api.Frame{
		DeviceID:    dev.ID,
		FrameNumber: number,
		Width:       dev.Width,
		Height:      dev.Height,
		TimestampNS: now.UnixNano(),
		PixelData:   data,
		PixelFormat: string(dev.PixelFormat),
	})
	r.hub.Measurements.Publish(api.MeasurementSample{
		Instrument:  dev.ID,
		TimestampNS: now.UnixNano(),
		Payload:     api.ImageValue(data),
	})
}

// renderPattern produces a diagonal gradient that drifts with the frame
// number, so consecutive frames are distinguishable in tests and viewers.
func renderPattern(width, height int, frameNumber uint64) pixels.Image {
	img := pixels.Image{
		Width:  width,
		Height: height,
		Values: make([]float64, width*height),
	}
	phase := float64(frameNumber % 256)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Values[y*width+x] = float64(x+y) + phase
		}
	}
	return img
}
