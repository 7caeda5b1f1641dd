package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/freeski070605/reemteam/internal/auth"
)

// Server owns the HTTP surface: the websocket upgrade endpoint, health
// and metrics, and the state-validation REST hook.
type Server struct {
	cfg       *ServerConfig
	service   *Service
	validator auth.Validator
	metrics   *Metrics
	logger    *log.Logger
	upgrader  websocket.Upgrader
}

// NewServer builds the HTTP layer around an already-wired service.
func NewServer(cfg *ServerConfig, svc *Service, validator auth.Validator, metrics *Metrics, logger *log.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		service:   svc,
		validator: validator,
		metrics:   metrics,
		logger:    logger.WithPrefix("http"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/tables/", s.handleTables)
	return mux
}

// Run serves until ctx is cancelled, then drains with a short grace
// period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.cfg.GetServerAddress(),
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	return s.runServer(ctx, srv)
}

func (s *Server) runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

// handleWebSocket upgrades a client connection. The token's signed
// subject must match the claimed userId; a mismatch closes the socket
// without an error frame so probes learn nothing.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	token := r.URL.Query().Get("token")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	identity, err := s.validator.Validate(r.Context(), token)
	authorized := err == nil && (identity == nil || identity.Subject == userID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}
	if !authorized {
		s.logger.Debug("rejecting unauthenticated socket", "claimed", userID)
		_ = conn.Close()
		return
	}

	connID := uuid.NewString()
	c := NewConnection(conn, connID, userID, s.cfg.PingInterval(), s.logger, s.service)
	s.service.Register(c)
	c.Start()

	go func() {
		<-c.Done()
		s.service.Unregister(c)
	}()

	s.logger.Info("client connected", "user", userID, "conn", connID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleTables serves POST /tables/{id}/validate-state.
func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/tables/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "validate-state" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tableID := parts[0]

	var req struct {
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	verdict, serverHash, err := s.service.ValidateState(tableID, req.Hash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"verdict":    verdict,
		"serverHash": serverHash,
	})
}
