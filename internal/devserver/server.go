// Package devserver is a development realtime chat/notification server
// speaking the same protocol as production: websocket and long-polling
// transports, rooms, notification pushes and a small REST API.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/colivhub/colivrt/internal/auth"
	"github.com/colivhub/colivrt/internal/configtypes"
	"github.com/colivhub/colivrt/internal/health"
	"github.com/colivhub/colivrt/internal/middleware"
	"github.com/colivhub/colivrt/internal/origin"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const (
	defaultPollTimeout  = 25 * time.Second
	defaultPingInterval = 25 * time.Second
	handshakeTimeout    = 10 * time.Second
	shutdownTimeout     = 5 * time.Second
)

var ErrNoSecret = errors.New("devserver: hmac_secret is required")

type Config struct {
	DevServer configtypes.DevServer
	// Path is the realtime endpoint prefix.
	Path string
	// PingInterval is the expected client ping interval.
	PingInterval time.Duration
	// Registerer enables HTTP request metrics when set.
	Registerer prometheus.Registerer
}

type Server struct {
	cfg      Config
	hub      *hub
	store    *memoryStore
	origin   *origin.Checker
	upgrader *websocket.Upgrader
	handler  http.Handler
}

func New(cfg Config) (*Server, error) {
	if cfg.DevServer.HMACSecret == "" {
		return nil, ErrNoSecret
	}
	if cfg.DevServer.PollTimeout <= 0 {
		cfg.DevServer.PollTimeout = configtypes.Duration(defaultPollTimeout)
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	cfg.Path = "/" + strings.Trim(cfg.Path, "/")
	checker, err := origin.NewChecker(cfg.DevServer.AllowedOrigins)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:    cfg,
		hub:    newHub(),
		store:  newMemoryStore(),
		origin: checker,
		upgrader: &websocket.Upgrader{
			CheckOrigin: checker.Allowed,
		},
	}
	s.handler, err = s.routes()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) routes() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.Handle("GET "+s.cfg.Path+"/websocket", http.HandlerFunc(s.handleWebsocket))

	var plain = http.NewServeMux()
	plain.HandleFunc("POST "+s.cfg.Path+"/poll", s.handlePollPost)
	plain.HandleFunc("GET "+s.cfg.Path+"/poll", s.handlePollGet)
	plain.HandleFunc("DELETE "+s.cfg.Path+"/poll", s.handlePollDelete)
	plain.Handle("/api/", middleware.BearerAuth(s.verify, s.apiRoutes()))
	plain.Handle("GET /health", health.NewHandler(health.Config{
		Stats: func() map[string]any {
			return map[string]any{"sessions": s.hub.numSessions(), "rooms": s.hub.numRooms()}
		},
	}))

	var h http.Handler = plain
	if s.cfg.Registerer != nil {
		instr, err := middleware.NewHTTPServerInstrumentation("colivrt", s.cfg.Registerer)
		if err != nil {
			return nil, err
		}
		h = instr.Middleware(h)
	}
	mux.Handle("/", middleware.NewCORS(s.origin.Allowed).Middleware(h))
	return middleware.LogRequest(mux), nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// verify returns the user ID of a valid connection token.
func (s *Server) verify(token string) (string, error) {
	claims, err := auth.VerifyHS256(s.cfg.DevServer.HMACSecret, token)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token without subject")
	}
	return claims.Subject, nil
}

// Sessions returns the number of connected sessions.
func (s *Server) Sessions() int {
	return s.hub.numSessions()
}

// DisconnectAll sends a server disconnect to every session.
func (s *Server) DisconnectAll() {
	for _, sess := range s.hub.all() {
		sess.enqueue(disconnectFrame)
	}
}

// Run serves on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.DevServer.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: handshakeTimeout,
	}
	go s.reapIdle(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", s.cfg.DevServer.Address).Str("path", s.cfg.Path).Msg("starting development realtime server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.DisconnectAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// reapIdle removes polling sessions whose client stopped polling.
func (s *Server) reapIdle(ctx context.Context) {
	ttl := 2 * s.cfg.DevServer.PollTimeout.ToDuration()
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sess := range s.hub.all() {
				if sess.transport == transportPolling && time.Since(sess.idleSince()) > ttl {
					log.Debug().Str("sid", sess.id).Msg("polling session expired")
					s.hub.remove(sess)
					sess.close()
				}
			}
		}
	}
}
