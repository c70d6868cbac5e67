package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vaultkeeper/internal/api"
	"vaultkeeper/internal/config"
	"vaultkeeper/internal/logging"
)

const (
	maxBodyBytes     = 1 << 20
	defaultEventWait = 25 * time.Second
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon
	svc    *api.InventoryService

	listener net.Listener
	server   *http.Server
}

// newAPIServer returns nil when no bind address is configured; every method
// tolerates a nil receiver.
func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		svc:    d.service,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, authMiddleware(s.token, h))
	}
	handle("GET /api/status", s.handleStatus)
	handle("GET /api/items", s.handleItems)
	handle("GET /api/items/{id}", s.handleItem)
	handle("POST /api/transfer", s.handleTransfer)
	handle("POST /api/socket", s.handleSocket)
	handle("POST /api/lock", s.handleLock)
	handle("POST /api/loadout", s.handleLoadout)
	handle("POST /api/resync", s.handleResync)
	handle("GET /api/history", s.handleHistory)
	handle("GET /api/events", s.handleEvents)
	handle("GET /api/events/ws", s.handleEventsWS)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "HTTP clients cannot reach the daemon"),
			)
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := api.ItemsQuery{
		Location: query.Get("location"),
		Name:     query.Get("name"),
		InFlight: parseBool(query.Get("in_flight")),
	}
	if raw := strings.TrimSpace(query.Get("hash")); raw != "" {
		hash, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid hash")
			return
		}
		q.ItemHash = uint32(hash)
	}
	resp, err := s.svc.Items(q)
	s.writeOutcome(w, resp, err)
}

func (s *apiServer) handleItem(w http.ResponseWriter, r *http.Request) {
	detail, err := s.svc.Describe(r.PathValue("id"))
	s.writeOutcome(w, detail, err)
}

func (s *apiServer) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req api.TransferRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Transfer(r.Context(), req)
	s.writeOutcome(w, resp, err)
}

func (s *apiServer) handleSocket(w http.ResponseWriter, r *http.Request) {
	var req api.SocketRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Socket(r.Context(), req)
	s.writeOutcome(w, resp, err)
}

func (s *apiServer) handleLock(w http.ResponseWriter, r *http.Request) {
	var req api.LockRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Lock(r.Context(), req)
	s.writeOutcome(w, resp, err)
}

// handleLoadout reports progress on the event feed; the response carries the
// itemized result even when the run was incomplete.
func (s *apiServer) handleLoadout(w http.ResponseWriter, r *http.Request) {
	var req api.LoadoutRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Loadout(r.Context(), req, nil)
	s.writeOutcome(w, resp, err)
}

func (s *apiServer) handleResync(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Resync(r.Context())
	s.writeOutcome(w, resp, err)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	entries, err := s.svc.History(r.Context(), api.HistoryQuery{
		Kind:       query.Get("kind"),
		Status:     query.Get("status"),
		InstanceID: query.Get("instance"),
		Limit:      limit,
	})
	s.writeOutcome(w, entries, err)
}

// handleEvents is a long poll: with wait set it holds the request until an
// event past since arrives or the wait elapses.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	wait := parseBool(query.Get("wait"))

	ctx := r.Context()
	if wait {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultEventWait)
		defer cancel()
	}
	resp, err := s.svc.Events(ctx, since, limit, wait)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeOutcome(w, nil, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeOutcome writes payload on success. On failure the status follows the
// classified error kind and payload rides along as the partial result.
func (s *apiServer) writeOutcome(w http.ResponseWriter, payload any, err error) {
	if err == nil {
		s.writeJSON(w, http.StatusOK, payload)
		return
	}
	failure := api.FromError(err)
	status := api.HTTPStatus(failure.Kind)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("api request failed",
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.String("kind", failure.Kind),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: failure, Result: payload})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func parseBool(value string) bool {
	value = strings.TrimSpace(value)
	return value == "1" || strings.EqualFold(value, "true")
}
