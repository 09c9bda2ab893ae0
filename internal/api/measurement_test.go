package api_test

import (
	"encoding/json"
	"strings"
	"testing"

	"beamline/internal/api"
)

func TestMeasurementScalarRoundTrip(t *testing.T) {
	sample := api.MeasurementSample{
		Instrument:  "mock_power_meter",
		TimestampNS: 42,
		Payload:     api.ScalarValue(1.25),
	}
	data, err := json.Marshal(sample)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"scalar"`) {
		t.Fatalf("missing scalar kind tag: %s", data)
	}

	var decoded api.MeasurementSample
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	scalar, ok := decoded.Payload.(api.ScalarValue)
	if !ok {
		t.Fatalf("payload type %T, want ScalarValue", decoded.Payload)
	}
	if float64(scalar) != 1.25 {
		t.Fatalf("scalar = %g, want 1.25", float64(scalar))
	}
}

func TestMeasurementImageVariant(t *testing.T) {
	sample := api.MeasurementSample{
		Instrument: "camera_0",
		Payload:    api.ImageValue([]byte{1, 2, 3}),
	}
	data, err := json.Marshal(sample)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded api.MeasurementSample
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	image, ok := decoded.Payload.(api.ImageValue)
	if !ok {
		t.Fatalf("payload type %T, want ImageValue", decoded.Payload)
	}
	if len(image) != 3 {
		t.Fatalf("image length %d, want 3", len(image))
	}
}

func TestMeasurementNilPayloadMarshalsAsNone(t *testing.T) {
	data, err := json.Marshal(api.MeasurementSample{Instrument: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded api.MeasurementSample
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded.Payload.(api.NoValue); !ok {
		t.Fatalf("payload type %T, want NoValue", decoded.Payload)
	}
}

func TestMeasurementUnknownKindErrors(t *testing.T) {
	var decoded api.MeasurementSample
	err := json.Unmarshal([]byte(`{"instrument":"x","payload":{"kind":"tensor"}}`), &decoded)
	if err == nil || !strings.Contains(err.Error(), "tensor") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestMeasurementScalarKindWithoutValueErrors(t *testing.T) {
	var decoded api.MeasurementSample
	err := json.Unmarshal([]byte(`{"payload":{"kind":"scalar"}}`), &decoded)
	if err == nil {
		t.Fatal("expected error for scalar kind without value")
	}
}
