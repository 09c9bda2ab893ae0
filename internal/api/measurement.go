package api

import (
	"encoding/json"
	"fmt"
)

// MeasurementSample is one event on an instrument's measurement feed. Exactly
// one payload variant is active at a time.
type MeasurementSample struct {
	Instrument  string             `json:"instrument"`
	TimestampNS int64              `json:"timestamp_ns"`
	Payload     MeasurementPayload `json:"-"`
}

// MeasurementPayload is the closed set of measurement variants. Consumers
// switch exhaustively over ScalarValue, ImageValue, and NoValue.
type MeasurementPayload interface {
	measurementPayload()
}

// ScalarValue is a single scalar reading.
type ScalarValue float64

// ImageValue is a raw image payload.
type ImageValue []byte

// NoValue marks a sample that carried no data (heartbeat tick).
type NoValue struct{}

func (ScalarValue) measurementPayload() {}
func (ImageValue) measurementPayload()  {}
func (NoValue) measurementPayload()     {}

const (
	payloadKindScalar = "scalar"
	payloadKindImage  = "image"
	payloadKindNone   = "none"
)

type measurementEnvelope struct {
	Instrument  string              `json:"instrument"`
	TimestampNS int64               `json:"timestamp_ns"`
	Payload     measurementVariants `json:"payload"`
}

type measurementVariants struct {
	Kind   string   `json:"kind"`
	Scalar *float64 `json:"scalar,omitempty"`
	Image  []byte   `json:"image,omitempty"`
}

// MarshalJSON encodes the active payload variant under a kind tag.
func (s MeasurementSample) MarshalJSON() ([]byte, error) {
	env := measurementEnvelope{Instrument: s.Instrument, TimestampNS: s.TimestampNS}
	switch payload := s.Payload.(type) {
	case ScalarValue:
		value := float64(payload)
		env.Payload = measurementVariants{Kind: payloadKindScalar, Scalar: &value}
	case ImageValue:
		env.Payload = measurementVariants{Kind: payloadKindImage, Image: payload}
	case NoValue, nil:
		env.Payload = measurementVariants{Kind: payloadKindNone}
	default:
		return nil, fmt.Errorf("measurement payload: unsupported variant %T", s.Payload)
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the kind tag into the matching variant. An unknown
// kind is an error, never silently NoValue.
func (s *MeasurementSample) UnmarshalJSON(data []byte) error {
	var env measurementEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	s.Instrument = env.Instrument
	s.TimestampNS = env.TimestampNS
	switch env.Payload.Kind {
	case payloadKindScalar:
		if env.Payload.Scalar == nil {
			return fmt.Errorf("measurement payload: scalar kind without value")
		}
		s.Payload = ScalarValue(*env.Payload.Scalar)
	case payloadKindImage:
		s.Payload = ImageValue(env.Payload.Image)
	case payloadKindNone:
		s.Payload = NoValue{}
	default:
		return fmt.Errorf("measurement payload: unknown kind %q", env.Payload.Kind)
	}
	return nil
}
