// Package telemetry fans acquisition events out to streaming subscribers.
//
// The Hub owns one topic per feed kind (status, measurements, frames,
// parameter changes, device state). Every subscription has its own bounded
// buffer: publishing never blocks a producer, and a consumer that falls
// behind loses the oldest events on its own subscription only. Subscriptions
// are independent lifetimes; closing one has no effect on its siblings.
package telemetry
