package pixels_test

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"beamline/internal/pixels"
)

func TestDecodeU8(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5}
	img, err := pixels.Decode(data, 3, 2, "u8")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Width != 3 || img.Height != 2 {
		t.Fatalf("dimensions %dx%d, want 3x2", img.Width, img.Height)
	}
	if got := img.At(2, 1); got != 5 {
		t.Fatalf("At(2,1) = %g, want 5", got)
	}
}

func TestDecodeU16Endianness(t *testing.T) {
	le := make([]byte, 4)
	binary.LittleEndian.PutUint16(le[0:], 0x0102)
	binary.LittleEndian.PutUint16(le[2:], 0xFFFF)

	img, err := pixels.Decode(le, 2, 1, "u16_le")
	if err != nil {
		t.Fatalf("Decode u16_le: %v", err)
	}
	if img.Values[0] != 0x0102 || img.Values[1] != 0xFFFF {
		t.Fatalf("u16_le values = %v", img.Values)
	}

	img, err = pixels.Decode(le, 2, 1, "u16_be")
	if err != nil {
		t.Fatalf("Decode u16_be: %v", err)
	}
	if img.Values[0] != 0x0201 {
		t.Fatalf("u16_be first value = %g, want 0x0201", img.Values[0])
	}
}

func TestDecodeF32(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(-2.25))
	img, err := pixels.Decode(data, 2, 1, "f32_le")
	if err != nil {
		t.Fatalf("Decode f32_le: %v", err)
	}
	if img.Values[0] != 1.5 || img.Values[1] != -2.25 {
		t.Fatalf("f32_le values = %v", img.Values)
	}
}

func TestDecodeRejectsUnknownFormat(t *testing.T) {
	_, err := pixels.Decode([]byte{0}, 1, 1, "rgb24")
	if err == nil || !strings.Contains(err.Error(), "rgb24") {
		t.Fatalf("expected unknown format error, got %v", err)
	}
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	_, err := pixels.Decode(make([]byte, 5), 2, 2, "u8")
	if err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestDecodeNilData(t *testing.T) {
	_, err := pixels.Decode(nil, 2, 2, "u8")
	if !errors.Is(err, pixels.ErrNoPixelData) {
		t.Fatalf("expected ErrNoPixelData, got %v", err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	img := pixels.Image{Width: 2, Height: 2, Values: []float64{0, 500, 65535, 12}}
	data, err := pixels.Encode(img, pixels.FormatU16LE)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := pixels.Decode(data, 2, 2, "u16_le")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, want := range img.Values {
		if decoded.Values[i] != want {
			t.Fatalf("value %d = %g, want %g", i, decoded.Values[i], want)
		}
	}
}

func TestEncodeClampsOutOfRange(t *testing.T) {
	img := pixels.Image{Width: 2, Height: 1, Values: []float64{-5, 300}}
	data, err := pixels.Encode(img, pixels.FormatU8)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if data[0] != 0 || data[1] != 255 {
		t.Fatalf("clamped bytes = %v, want [0 255]", data)
	}
}
