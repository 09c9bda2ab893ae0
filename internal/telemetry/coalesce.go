package telemetry

import (
	"time"

	"beamline/internal/api"
)

// Coalescer rate-limits device-state updates per device. Updates arriving
// faster than the configured interval are merged field-wise and released on
// the next Flush.
type Coalescer struct {
	interval time.Duration
	lastSent map[string]time.Time
	pending  map[string]api.DeviceStateUpdate
}

// NewCoalescer builds a coalescer for the given maximum rate. maxRateHz <= 0
// disables limiting; every update passes through untouched.
func NewCoalescer(maxRateHz int) *Coalescer {
	c := &Coalescer{
		lastSent: make(map[string]time.Time),
		pending:  make(map[string]api.DeviceStateUpdate),
	}
	if maxRateHz > 0 {
		c.interval = time.Second / time.Duration(maxRateHz)
	}
	return c
}

// Interval reports the minimum spacing between updates per device; zero when
// unlimited.
func (c *Coalescer) Interval() time.Duration {
	return c.interval
}

// Offer submits an update. The return value is the update to deliver now, or
// nil when it was merged into the device's pending delta.
func (c *Coalescer) Offer(update api.DeviceStateUpdate, now time.Time) *api.DeviceStateUpdate {
	if c.interval == 0 {
		return &update
	}
	if last, ok := c.lastSent[update.DeviceID]; ok && now.Sub(last) < c.interval {
		c.merge(update)
		return nil
	}
	c.lastSent[update.DeviceID] = now
	return &update
}

// Flush releases every pending delta whose device is past its rate window.
func (c *Coalescer) Flush(now time.Time) []api.DeviceStateUpdate {
	if c.interval == 0 || len(c.pending) == 0 {
		return nil
	}
	var due []api.DeviceStateUpdate
	for id, update := range c.pending {
		if now.Sub(c.lastSent[id]) < c.interval {
			continue
		}
		c.lastSent[id] = now
		due = append(due, update)
		delete(c.pending, id)
	}
	return due
}

func (c *Coalescer) merge(update api.DeviceStateUpdate) {
	existing, ok := c.pending[update.DeviceID]
	if !ok {
		// The offered update's Fields map is shared with every other
		// subscriber; the pending delta gets a private copy so later
		// merges never write into fanned-out events.
		pending := update
		pending.Fields = make(map[string]string, len(update.Fields))
		for name, value := range update.Fields {
			pending.Fields[name] = value
		}
		c.pending[update.DeviceID] = pending
		return
	}
	if existing.Fields == nil {
		existing.Fields = make(map[string]string, len(update.Fields))
	}
	for name, value := range update.Fields {
		existing.Fields[name] = value
	}
	c.pending[update.DeviceID] = existing
}
