package api

// DaemonStatus reports daemon runtime information over /api/status.
type DaemonStatus struct {
	Running         bool   `json:"running"`
	PID             int    `json:"pid"`
	Socket          string `json:"socket"`
	APIBind         string `json:"api_bind"`
	DBPath          string `json:"db_path"`
	LockFilePath    string `json:"lock_file_path"`
	ActiveExecution string `json:"active_execution,omitempty"`
	DeviceCount     int    `json:"device_count"`
	Subscriptions   int    `json:"subscriptions"`
}

// StatusSnapshot is one tick of the system status feed.
type StatusSnapshot struct {
	State       string             `json:"state"`
	MemoryMB    float64            `json:"memory_mb"`
	LiveValues  map[string]float64 `json:"live_values,omitempty"`
	TimestampNS int64              `json:"timestamp_ns"`
}

// Frame is one camera frame event. PixelData is absent when the subscription
// did not request pixel bytes; when present its length is
// width*height*bytes-per-sample for the format.
type Frame struct {
	DeviceID    string `json:"device_id"`
	FrameNumber uint64 `json:"frame_number"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	TimestampNS int64  `json:"timestamp_ns"`
	PixelData   []byte `json:"pixel_data,omitempty"`
	PixelFormat string `json:"pixel_format"`
}

// ParameterChange reports one device parameter transition. Values are
// canonical strings; numeric interpretation is the caller's (fallible) step.
type ParameterChange struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
	Units    string `json:"units,omitempty"`
}

// DeviceStateUpdate carries either a full state snapshot (first event of a
// subscription that requested one) or an incremental field delta.
type DeviceStateUpdate struct {
	DeviceID   string            `json:"device_id"`
	Fields     map[string]string `json:"fields"`
	IsSnapshot bool              `json:"is_snapshot,omitempty"`
}

// StreamError is the terminal line the server writes before ending a feed
// abnormally, so clients can distinguish failure from a clean close.
type StreamError struct {
	Error string `json:"error"`
}
