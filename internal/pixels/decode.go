package pixels

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Format identifies the on-wire pixel encoding of a frame payload.
type Format string

const (
	FormatU8    Format = "u8"
	FormatU16LE Format = "u16_le"
	FormatU16BE Format = "u16_be"
	FormatF32LE Format = "f32_le"
)

var ErrNoPixelData = errors.New("pixels: no pixel data in frame")

// ParseFormat validates a wire format tag.
func ParseFormat(tag string) (Format, error) {
	switch Format(tag) {
	case FormatU8, FormatU16LE, FormatU16BE, FormatF32LE:
		return Format(tag), nil
	default:
		return "", fmt.Errorf("pixels: unknown pixel format %q", tag)
	}
}

// BytesPerSample reports the element width of a format.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatU16LE, FormatU16BE:
		return 2
	case FormatF32LE:
		return 4
	default:
		return 0
	}
}

// Image is a decoded frame in row-major height x width order. Values holds
// width*height samples; float64 represents every supported format exactly.
type Image struct {
	Width  int
	Height int
	Values []float64
}

// At returns the sample at row y, column x.
func (img Image) At(x, y int) float64 {
	return img.Values[y*img.Width+x]
}

// Decode translates a raw pixel buffer into an Image. It fails when data is
// nil, the format tag is unrecognized, or the buffer length does not equal
// width*height*bytes-per-sample.
func Decode(data []byte, width, height int, tag string) (Image, error) {
	if data == nil {
		return Image{}, ErrNoPixelData
	}
	format, err := ParseFormat(tag)
	if err != nil {
		return Image{}, err
	}
	if width <= 0 || height <= 0 {
		return Image{}, fmt.Errorf("pixels: invalid dimensions %dx%d", width, height)
	}

	samples := width * height
	if expected := samples * format.BytesPerSample(); len(data) != expected {
		return Image{}, fmt.Errorf("pixels: buffer length %d, want %d for %dx%d %s",
			len(data), expected, width, height, format)
	}

	values := make([]float64, samples)
	switch format {
	case FormatU8:
		for i, b := range data {
			values[i] = float64(b)
		}
	case FormatU16LE:
		for i := range values {
			values[i] = float64(binary.LittleEndian.Uint16(data[i*2:]))
		}
	case FormatU16BE:
		for i := range values {
			values[i] = float64(binary.BigEndian.Uint16(data[i*2:]))
		}
	case FormatF32LE:
		for i := range values {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			values[i] = float64(math.Float32frombits(bits))
		}
	}

	return Image{Width: width, Height: height, Values: values}, nil
}
