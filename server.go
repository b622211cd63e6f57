package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Server exposes backend status to the desktop UI over local HTTP
type Server struct {
	supervisor *Supervisor
	host       string
	port       int
	upgrader   websocket.Upgrader
	origins    []string // Extra websocket origins beyond loopback and the desktop shell
	username   string // BasicAuth username (empty = no username required)
	password   string // BasicAuth password (empty = no auth)
	httpServer *http.Server
}

// NewServer creates a new status server
func NewServer(supervisor *Supervisor, cfg StatusConfig) *Server {
	// Parse authorization config once
	var username, password string
	if cfg.Authorization != "" {
		if idx := strings.Index(cfg.Authorization, ":"); idx > 0 {
			username = cfg.Authorization[:idx]
			password = cfg.Authorization[idx+1:]
		} else {
			password = cfg.Authorization
		}
	}

	s := &Server{
		supervisor: supervisor,
		host:       cfg.Host,
		port:       cfg.Port,
		origins:    cfg.AllowedOrigins,
		username:   username,
		password:   password,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

// basicAuthMiddleware wraps the entire handler with BasicAuth authentication
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// If no password configured, allow all requests
		if s.password == "" {
			next.ServeHTTP(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok || username != s.username || password != s.password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Backend Launcher"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// checkOrigin accepts websocket upgrades from the server's own origin, the
// desktop shell's webview, loopback dev servers and configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // Not a browser
	}
	if slices.Contains(s.origins, origin) {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if u.Scheme == "tauri" {
		return true
	}

	switch host := strings.ToLower(u.Hostname()); host {
	case "tauri.localhost", "localhost":
		return true
	default:
		ip := net.ParseIP(host)
		return ip != nil && ip.IsLoopback()
	}
}

// Handler returns the routed and authenticated HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/backend/status", s.getStatus)
	mux.HandleFunc("GET /api/backend/events", s.streamEvents)

	return s.basicAuthMiddleware(mux)
}

// Start starts the status server and blocks until it stops.
// It returns nil after Shutdown.
func (s *Server) Start() error {
	fmt.Printf("Starting status server on http://%s\n", s.Addr())
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the status server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// getStatus returns the current backend status
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.supervisor.Status())
}

// streamEvents streams lifecycle events via WebSocket
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Subscribe before the snapshot so no transition falls in between
	ch := s.supervisor.Subscribe()
	defer s.supervisor.Unsubscribe(ch)

	if err := conn.WriteJSON(s.supervisor.Status()); err != nil {
		return
	}

	// Detect client disconnects; clients never send anything meaningful
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// isPortInUse checks if a port is already in use by attempting to listen on it
func isPortInUse(addr string) bool {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return true // Port is in use or unreachable
	}
	listener.Close()

	// Small delay to ensure port is fully released
	time.Sleep(10 * time.Millisecond)
	return false
}
