package ipc

// UploadScriptRequest submits script content for validation and storage.
type UploadScriptRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// UploadScriptResponse reports the upload result. Validation failures are
// semantic (Success=false with a message), not transport errors.
type UploadScriptResponse struct {
	Success      bool   `json:"success"`
	ScriptID     string `json:"script_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// StartScriptRequest launches an execution of an uploaded script.
type StartScriptRequest struct {
	ScriptID string `json:"script_id"`
}

// StartScriptResponse reports the start result. An unknown script id or a
// busy engine yields Started=false with a message.
type StartScriptResponse struct {
	Started     bool   `json:"started"`
	ExecutionID string `json:"execution_id,omitempty"`
	Message     string `json:"message,omitempty"`
}

// GetScriptStatusRequest fetches execution lifecycle state.
type GetScriptStatusRequest struct {
	ExecutionID string `json:"execution_id"`
}

// ExecutionStatus mirrors the persisted execution record.
type ExecutionStatus struct {
	ExecutionID  string `json:"execution_id"`
	ScriptID     string `json:"script_id"`
	State        string `json:"state"`
	ErrorMessage string `json:"error_message,omitempty"`
	StartTimeNS  int64  `json:"start_time_ns"`
	EndTimeNS    int64  `json:"end_time_ns"`
}

// GetScriptStatusResponse carries the execution record.
type GetScriptStatusResponse struct {
	Execution ExecutionStatus `json:"execution"`
}

// StopScriptRequest aborts a running execution.
type StopScriptRequest struct {
	ExecutionID string `json:"execution_id"`
}

// StopScriptResponse reports the stop result. Stopping an execution that is
// not running yields Stopped=false with no side effects.
type StopScriptResponse struct {
	Stopped bool `json:"stopped"`
}

// ListScriptsRequest fetches all uploaded scripts.
type ListScriptsRequest struct{}

// ScriptInfo summarizes one uploaded script.
type ScriptInfo struct {
	ScriptID  string `json:"script_id"`
	Name      string `json:"name"`
	SizeBytes int    `json:"size_bytes"`
	CreatedAt string `json:"created_at"`
}

// ListScriptsResponse contains uploaded scripts, newest first.
type ListScriptsResponse struct {
	Scripts []ScriptInfo `json:"scripts"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse reports combined daemon runtime information.
type StatusResponse struct {
	Running         bool   `json:"running"`
	PID             int    `json:"pid"`
	Socket          string `json:"socket"`
	APIBind         string `json:"api_bind"`
	DBPath          string `json:"db_path"`
	LockPath        string `json:"lock_path"`
	ActiveExecution string `json:"active_execution,omitempty"`
	DeviceCount     int    `json:"device_count"`
	Subscriptions   int    `json:"subscriptions"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Stopping bool `json:"stopping"`
}
