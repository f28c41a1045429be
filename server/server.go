package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"

	"github.com/newmanjoel/Lights/animation"
	"github.com/newmanjoel/Lights/config"
	"github.com/newmanjoel/Lights/controller"
	"github.com/newmanjoel/Lights/store"
	"github.com/newmanjoel/Lights/util"
)

const shutdownTimeout = 5 * time.Second

// Library is the part of the animation library the server reads.
type Library interface {
	Get(id int) (animation.Animation, error)
	List() []store.Summary
}

// Server is the HTTP command producer. Commands are queued and answered
// with 202, the render loop applies them later.
type Server struct {
	addr     string
	cmds     chan<- animation.Command
	state    *util.Snapshot[controller.LiveState]
	lib      Library
	shutdown *util.Shutdown
	hub      *Hub

	mux    *http.ServeMux
	routes map[string][]string
}

func New(cfg config.WebConfig, cfile string, cmds chan<- animation.Command, state *util.Snapshot[controller.LiveState],
	lib Library, daynight *config.DayNightStore, shutdown *util.Shutdown) *Server {
	s := &Server{
		addr:     net.JoinHostPort(cfg.Interface, strconv.Itoa(cfg.Port)),
		cmds:     cmds,
		state:    state,
		lib:      lib,
		shutdown: shutdown,
		hub:      NewHub(state, shutdown),
		mux:      http.NewServeMux(),
		routes:   map[string][]string{},
	}

	s.handle(http.MethodPost, "/api/brightness/{value}", s.handleBrightness)
	s.handle(http.MethodPost, "/api/speed/{fps}", s.handleSpeed)
	s.handle(http.MethodPost, "/api/animation/{id}", s.handleAnimation)
	s.handle(http.MethodGet, "/api/status", s.handleStatus)
	s.handle(http.MethodGet, "/api/animations", s.handleAnimations)
	s.handle(http.MethodGet, "/api/animations/{id}", s.handleAnimationInfo)
	settings := config.SettingsHandler(daynight)
	s.handle(http.MethodGet, "/api/settings/{setting}", settings)
	s.handle(http.MethodPost, "/api/settings/{setting}/{value}", settings)
	daynightHandler := config.DayNightHandler(cfile, daynight)
	s.handle(http.MethodGet, "/api/daynight", daynightHandler)
	s.handle(http.MethodPost, "/api/daynight", daynightHandler)
	s.handle(http.MethodGet, "/api/ws", s.hub.ServeWS)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	return s
}

func (s *Server) handle(method, path string, h http.HandlerFunc) {
	s.mux.HandleFunc(method+" "+path, h)
	s.routes[path] = append(s.routes[path], method)
}

// Handler is the complete request chain, usable without a listener.
func (s *Server) Handler() http.Handler {
	return requestID(s.mux)
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves until shutdown. A listener failure is returned, a regular
// shutdown returns nil.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-s.shutdown.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("HTTP server shutdown", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server on %s: %w", s.addr, err)
	}
	slog.Info("HTTP server stopped")
	return nil
}

type requestIDKey struct{}

// requestID tags every request with an id that is logged and returned in
// the X-Request-Id header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		slog.Debug("HTTP request", "request_id", id, "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// enqueue blocks until the render loop takes the command, the client goes
// away or the service shuts down.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, cmd animation.Command) {
	select {
	case s.cmds <- cmd:
		slog.Info("Queued command", "request_id", requestIDFrom(r.Context()), "command", cmd.String())
		writeJSON(w, http.StatusAccepted, map[string]string{"queued": cmd.String()})
	case <-r.Context().Done():
		slog.Warn("Request cancelled before the command was queued", "request_id", requestIDFrom(r.Context()), "command", cmd.String())
	case <-s.shutdown.Done():
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
	}
}

func (s *Server) handleBrightness(w http.ResponseWriter, r *http.Request) {
	value := r.PathValue("value")
	level, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		http.Error(w, fmt.Sprintf("brightness %q must be between 0 and 255", value), http.StatusBadRequest)
		return
	}
	s.enqueue(w, r, animation.SetBrightness{Level: uint8(level)})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	value := r.PathValue("fps")
	fps, err := strconv.ParseFloat(value, 64)
	if err == nil {
		err = animation.ValidateSpeed(fps)
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("speed %q: %v", value, err), http.StatusBadRequest)
		return
	}
	s.enqueue(w, r, animation.SetSpeed{FPS: fps})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (animation.Animation, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("animation id %q is not a number", r.PathValue("id")), http.StatusBadRequest)
		return animation.Animation{}, false
	}
	anim, err := s.lib.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return animation.Animation{}, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return animation.Animation{}, false
	}
	return anim, true
}

func (s *Server) handleAnimation(w http.ResponseWriter, r *http.Request) {
	anim, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.enqueue(w, r, animation.SetAnimation{Animation: anim})
}

func (s *Server) handleAnimationInfo(w http.ResponseWriter, r *http.Request) {
	anim, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, store.Summarise(anim))
}

func (s *Server) handleAnimations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.lib.List())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Load())
}

type route struct {
	Path    string `json:"path"`
	Methods string `json:"methods"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	paths := maps.Keys(s.routes)
	slices.Sort(paths)
	index := make([]route, 0, len(paths))
	for _, path := range paths {
		index = append(index, route{Path: path, Methods: strings.Join(s.routes[path], ",")})
	}
	writeJSON(w, http.StatusOK, index)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
