package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// UploadScript submits script content and returns the assigned id.
func (c *Client) UploadScript(name, content string) (*UploadScriptResponse, error) {
	var resp UploadScriptResponse
	req := UploadScriptRequest{Name: name, Content: content}
	if err := c.client.Call("Beamline.UploadScript", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartScript launches an execution of an uploaded script.
func (c *Client) StartScript(scriptID string) (*StartScriptResponse, error) {
	var resp StartScriptResponse
	req := StartScriptRequest{ScriptID: scriptID}
	if err := c.client.Call("Beamline.StartScript", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetScriptStatus fetches the lifecycle state of an execution.
func (c *Client) GetScriptStatus(executionID string) (*GetScriptStatusResponse, error) {
	var resp GetScriptStatusResponse
	req := GetScriptStatusRequest{ExecutionID: executionID}
	if err := c.client.Call("Beamline.GetScriptStatus", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopScript aborts a running execution.
func (c *Client) StopScript(executionID string) (*StopScriptResponse, error) {
	var resp StopScriptResponse
	req := StopScriptRequest{ExecutionID: executionID}
	if err := c.client.Call("Beamline.StopScript", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListScripts returns all uploaded scripts.
func (c *Client) ListScripts() (*ListScriptsResponse, error) {
	var resp ListScriptsResponse
	if err := c.client.Call("Beamline.ListScripts", ListScriptsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Beamline.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the daemon process to exit.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	var resp ShutdownResponse
	if err := c.client.Call("Beamline.Shutdown", ShutdownRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
