package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"beamline/internal/daemon"
	"beamline/internal/engine"
	"beamline/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Beamline", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) UploadScript(req UploadScriptRequest, resp *UploadScriptResponse) error {
	id, err := s.daemon.UploadScript(s.ctx, req.Name, req.Content)
	if err != nil {
		resp.Success = false
		resp.ErrorMessage = err.Error()
		return nil
	}
	resp.Success = true
	resp.ScriptID = id
	s.log().Info("script uploaded via IPC",
		logging.String(logging.FieldScriptID, id),
		logging.String("name", req.Name))
	return nil
}

func (s *service) StartScript(req StartScriptRequest, resp *StartScriptResponse) error {
	if req.ScriptID == "" {
		resp.Started = false
		resp.Message = "start requires a script id"
		return nil
	}
	id, err := s.daemon.StartScript(s.ctx, req.ScriptID)
	if err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.ExecutionID = id
	s.log().Info("execution started via IPC",
		logging.String(logging.FieldExecutionID, id),
		logging.String(logging.FieldScriptID, req.ScriptID))
	return nil
}

func (s *service) GetScriptStatus(req GetScriptStatusRequest, resp *GetScriptStatusResponse) error {
	if req.ExecutionID == "" {
		return errors.New("status requires an execution id")
	}
	exec, err := s.daemon.ScriptStatus(s.ctx, req.ExecutionID)
	if err != nil {
		return err
	}
	resp.Execution = ExecutionStatus{
		ExecutionID:  exec.ExecutionID,
		ScriptID:     exec.ScriptID,
		State:        string(exec.State),
		ErrorMessage: exec.ErrorMessage,
		StartTimeNS:  exec.StartTimeNS,
		EndTimeNS:    exec.EndTimeNS,
	}
	return nil
}

func (s *service) StopScript(req StopScriptRequest, resp *StopScriptResponse) error {
	if req.ExecutionID == "" {
		return errors.New("stop requires an execution id")
	}
	if err := s.daemon.StopScript(s.ctx, req.ExecutionID); err != nil {
		if errors.Is(err, engine.ErrNotRunning) {
			resp.Stopped = false
			return nil
		}
		return err
	}
	resp.Stopped = true
	s.log().Info("execution stopped via IPC",
		logging.String(logging.FieldExecutionID, req.ExecutionID))
	return nil
}

func (s *service) ListScripts(_ ListScriptsRequest, resp *ListScriptsResponse) error {
	items, err := s.daemon.ListScripts(s.ctx)
	if err != nil {
		return err
	}
	resp.Scripts = make([]ScriptInfo, 0, len(items))
	for _, item := range items {
		resp.Scripts = append(resp.Scripts, ScriptInfo{
			ScriptID:  item.ID,
			Name:      item.Name,
			SizeBytes: len(item.Content),
			CreatedAt: item.CreatedAt.Format(time.RFC3339),
		})
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status()
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Socket = status.Socket
	resp.APIBind = status.APIBind
	resp.DBPath = status.DBPath
	resp.LockPath = status.LockFilePath
	resp.ActiveExecution = status.ActiveExecution
	resp.DeviceCount = status.DeviceCount
	resp.Subscriptions = status.Subscriptions
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.log().Info("shutdown requested via IPC")
	s.daemon.RequestShutdown()
	resp.Stopping = true
	return nil
}
