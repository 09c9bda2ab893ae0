package pixels

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode flattens an image into the wire representation of the given format.
// Values are clamped to the format's range; the inverse of Decode up to that
// clamping.
func Encode(img Image, format Format) ([]byte, error) {
	if len(img.Values) != img.Width*img.Height {
		return nil, fmt.Errorf("pixels: %d values for %dx%d image", len(img.Values), img.Width, img.Height)
	}
	bps := format.BytesPerSample()
	if bps == 0 {
		return nil, fmt.Errorf("pixels: unknown pixel format %q", format)
	}

	data := make([]byte, len(img.Values)*bps)
	switch format {
	case FormatU8:
		for i, v := range img.Values {
			data[i] = uint8(clamp(v, 0, math.MaxUint8))
		}
	case FormatU16LE:
		for i, v := range img.Values {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(clamp(v, 0, math.MaxUint16)))
		}
	case FormatU16BE:
		for i, v := range img.Values {
			binary.BigEndian.PutUint16(data[i*2:], uint16(clamp(v, 0, math.MaxUint16)))
		}
	case FormatF32LE:
		for i, v := range img.Values {
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(float32(v)))
		}
	}
	return data, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
