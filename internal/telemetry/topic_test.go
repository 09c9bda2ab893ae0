package telemetry_test

import (
	"testing"
	"time"

	"beamline/internal/api"
	"beamline/internal/telemetry"
)

func TestTopicDeliversToMatchingSubscribers(t *testing.T) {
	topic := telemetry.NewTopic[api.ParameterChange]()
	all := topic.Subscribe(4, nil)
	filtered := topic.Subscribe(4, func(c api.ParameterChange) bool {
		return c.DeviceID == "stage"
	})
	defer all.Close()
	defer filtered.Close()

	topic.Publish(api.ParameterChange{DeviceID: "stage", Name: "position"})
	topic.Publish(api.ParameterChange{DeviceID: "laser", Name: "power"})

	if got := <-all.Events(); got.DeviceID != "stage" {
		t.Fatalf("first event device %q, want stage", got.DeviceID)
	}
	if got := <-all.Events(); got.DeviceID != "laser" {
		t.Fatalf("second event device %q, want laser", got.DeviceID)
	}
	if got := <-filtered.Events(); got.DeviceID != "stage" {
		t.Fatalf("filtered event device %q, want stage", got.DeviceID)
	}
	select {
	case extra := <-filtered.Events():
		t.Fatalf("unexpected extra event %+v", extra)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTopicShedsOldestWhenBufferFull(t *testing.T) {
	topic := telemetry.NewTopic[int]()
	sub := topic.Subscribe(2, nil)
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		topic.Publish(i)
	}

	if got := <-sub.Events(); got != 4 {
		t.Fatalf("first buffered event = %d, want 4", got)
	}
	if got := <-sub.Events(); got != 5 {
		t.Fatalf("second buffered event = %d, want 5", got)
	}
	if sub.Dropped() != 3 {
		t.Fatalf("dropped = %d, want 3", sub.Dropped())
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	topic := telemetry.NewTopic[int]()
	sub := topic.Subscribe(1, nil)
	sub.Close()
	sub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Fatal("channel should be closed")
	}
	if topic.Subscribers() != 0 {
		t.Fatalf("subscribers = %d, want 0", topic.Subscribers())
	}
}

func TestTopicCloseDrainsBufferedEvents(t *testing.T) {
	topic := telemetry.NewTopic[int]()
	sub := topic.Subscribe(4, nil)

	topic.Publish(7)
	topic.Close()

	if got, ok := <-sub.Events(); !ok || got != 7 {
		t.Fatalf("buffered event = %d (ok=%v), want 7", got, ok)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("channel should report closure after drain")
	}
	// Publishing after close is a no-op, and so is closing a closed sub.
	topic.Publish(8)
	sub.Close()
}

func TestSubscribeAfterCloseYieldsClosedChannel(t *testing.T) {
	topic := telemetry.NewTopic[int]()
	topic.Close()
	sub := topic.Subscribe(1, nil)
	if _, ok := <-sub.Events(); ok {
		t.Fatal("subscription on closed topic should be closed")
	}
}

func TestHubFeedsAreIsolated(t *testing.T) {
	hub := telemetry.NewHub(8)
	defer hub.Close()

	frames := hub.Frames.Subscribe(hub.BufferSize(), nil)
	params := hub.Parameters.Subscribe(hub.BufferSize(), nil)
	defer frames.Close()
	defer params.Close()

	hub.Frames.Publish(api.Frame{DeviceID: "camera_0", FrameNumber: 1})

	if got := <-frames.Events(); got.FrameNumber != 1 {
		t.Fatalf("frame number = %d, want 1", got.FrameNumber)
	}
	select {
	case leak := <-params.Events():
		t.Fatalf("parameter feed received frame traffic: %+v", leak)
	case <-time.After(20 * time.Millisecond):
	}
	if hub.Subscribers() != 2 {
		t.Fatalf("subscribers = %d, want 2", hub.Subscribers())
	}
}
