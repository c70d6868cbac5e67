package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"vaultkeeper/internal/api"
	"vaultkeeper/internal/daemon"
	"vaultkeeper/internal/logging"
)

const maxEventWait = 30 * time.Second

// Server exposes daemon operations via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer listens at path, replacing any stale socket file.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, svc: d.Service(), logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections until Close or the parent context ends.
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
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			if !s.track(conn) {
				_ = conn.Close()
				return
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.untrack(c)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-s.ctx.Done()
		_ = s.listener.Close()
	}()
}

// Close stops accepting, drops open connections, and removes the socket.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the socket file manually before the next start"),
		)
	}
}

// track registers conn; it reports false once Close has run.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

type service struct {
	daemon *daemon.Daemon
	svc    *api.InventoryService
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.DaemonStatus = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) Items(req ItemsRequest, resp *ItemsResponse) error {
	items, err := s.svc.Items(req.ItemsQuery)
	resp.ItemsResponse = items
	resp.setFailure(err)
	return nil
}

func (s *service) Item(req ItemRequest, resp *ItemResponse) error {
	detail, err := s.svc.Describe(req.InstanceID)
	resp.Item = detail
	resp.setFailure(err)
	return nil
}

func (s *service) Transfer(req TransferRequest, resp *TransferResponse) error {
	s.logger.Debug("transfer requested",
		logging.String("instance_id", req.InstanceID),
		logging.String("target", req.Target))
	out, err := s.svc.Transfer(s.ctx, req.TransferRequest)
	resp.TransferResponse = out
	resp.setFailure(err)
	return nil
}

func (s *service) Socket(req SocketRequest, resp *SocketResponse) error {
	out, err := s.svc.Socket(s.ctx, req.SocketRequest)
	resp.SocketResponse = out
	resp.setFailure(err)
	return nil
}

func (s *service) Lock(req LockRequest, resp *LockResponse) error {
	out, err := s.svc.Lock(s.ctx, req.LockRequest)
	resp.LockResponse = out
	resp.setFailure(err)
	return nil
}

func (s *service) Loadout(req LoadoutRequest, resp *LoadoutResponse) error {
	out, err := s.svc.Loadout(s.ctx, req.LoadoutRequest, nil)
	resp.LoadoutResponse = out
	resp.setFailure(err)
	return nil
}

func (s *service) Resync(_ ResyncRequest, resp *ResyncResponse) error {
	out, err := s.svc.Resync(s.ctx)
	resp.ResyncResponse = out
	resp.setFailure(err)
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	entries, err := s.svc.History(s.ctx, req.HistoryQuery)
	resp.Entries = entries
	resp.setFailure(err)
	return nil
}

// Events never reports a timeout as an error; an empty batch tells the
// client to poll again from Next.
func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	ctx := s.ctx
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait > maxEventWait {
		wait = maxEventWait
	}
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	out, err := s.svc.Events(ctx, req.Since, req.Limit, wait > 0)
	resp.EventsResponse = out
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
