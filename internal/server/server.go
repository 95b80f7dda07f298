// Package server is the network side of bloom: the REST API, the websocket
// endpoint and the broadcast loop.
//
// Every engine access goes through the shared accessor. Handlers copy what
// they need under the lock and encode after releasing it, so no network I/O
// ever happens while the sensing loop is waiting.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/roach88/bloom/internal/shared"
	"github.com/roach88/bloom/internal/state"
)

const (
	// DefaultDayCheckInterval is how often Run looks for a day boundary.
	DefaultDayCheckInterval = time.Second

	shutdownTimeout = 5 * time.Second
)

// Server serves the web UI API and pushes state to websocket clients.
type Server struct {
	access   *shared.Accessor
	notifier *shared.Notifier
	hub      *hub
	ids      IDGenerator
	logger   *slog.Logger
	clock    state.Clock
	days     *DayWatcher
	dayEvery time.Duration
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator sets the client and request id source. Default: UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Server) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithClock sets the wall clock used for day checks. Default: time.Now.
func WithClock(c state.Clock) Option {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithDayWatcher enables the midnight policy: Run closes the day on the
// engine whenever w reports a new day.
func WithDayWatcher(w *DayWatcher, every time.Duration) Option {
	return func(s *Server) {
		s.days = w
		if every > 0 {
			s.dayEvery = every
		}
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// New creates a server over access. Broadcast requests are read from
// notifier by Run; a nil notifier gets a private one.
func New(access *shared.Accessor, notifier *shared.Notifier, opts ...Option) *Server {
	if notifier == nil {
		notifier = shared.NewNotifier(shared.DefaultNotifierDepth)
	}
	s := &Server{
		access:   access,
		notifier: notifier,
		hub:      newHub(),
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
		clock:    wallClock{},
		dayEvery: DefaultDayCheckInterval,
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/tasks", s.handleTasks)
	s.mux.HandleFunc("POST /api/tasks", s.handleAddTask)
	s.mux.HandleFunc("POST /api/action", s.handleAction)
	s.mux.Handle("GET /ws", websocket.Handler(s.serveWS))
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int { return s.hub.len() }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run is the network loop. It drains broadcast requests and applies the
// midnight policy until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("network loop starting")

	ticker := time.NewTicker(s.dayEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("network loop stopping")
			return nil

		case k := <-s.notifier.C():
			var want [shared.KindTasks + 1]bool
			want[k] = true
			s.notifier.Drain(func(k shared.Kind) { want[k] = true })

			var kinds []shared.Kind
			for _, k := range shared.Kinds {
				if want[k] {
					kinds = append(kinds, k)
				}
			}
			s.Broadcast(kinds...)

		case <-ticker.C:
			s.checkDay(s.clock.Now())
		}
	}
}

func (s *Server) checkDay(now time.Time) {
	if s.days == nil || !s.days.Check(now) {
		return
	}
	var killed bool
	s.access.Do(func(e *state.Engine) {
		killed = e.CloseDay()
	})
	s.logger.Info("day closed", "date", now.Format(time.DateOnly), "plant_withered", killed)
}

// Broadcast sends the current view for each kind to every client.
func (s *Server) Broadcast(kinds ...shared.Kind) {
	if len(kinds) == 0 || s.hub.len() == 0 {
		return
	}
	st := shared.Read(s.access, func(e *state.Engine) state.Status { return e.Status() })

	peers := s.hub.snapshot()
	for _, k := range kinds {
		frame, err := json.Marshal(frameFor(k, st))
		if err != nil {
			s.logger.Error("encode broadcast frame", "kind", k.String(), "error", err)
			continue
		}
		for _, p := range peers {
			if err := p.write(frame); err != nil {
				s.logger.Debug("broadcast write failed, dropping client", "client", p.id, "error", err)
				s.hub.remove(p.id)
			}
		}
	}
}

// apply runs one action under the lock.
func (s *Server) apply(req actionRequest, lookup func(string) (actionFunc, bool)) (actionResult, error) {
	fn, ok := lookup(req.Action)
	if !ok {
		return actionResult{}, unknownActionError{action: req.Action}
	}
	var res actionResult
	err := s.access.With(func(e *state.Engine) error {
		var err error
		res, err = fn(e, req)
		return err
	})
	return res, err
}

// errorStatus maps an action error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	var unknown unknownActionError
	switch {
	case errors.As(err, &unknown):
		return http.StatusBadRequest, string(state.ErrCodeInvalidArgument)
	case state.IsInvalidArgument(err):
		return http.StatusBadRequest, string(state.ErrCodeInvalidArgument)
	case state.IsInvalidReference(err):
		return http.StatusNotFound, string(state.ErrCodeInvalidReference)
	case state.IsCapacityExceeded(err):
		return http.StatusConflict, string(state.ErrCodeCapacityExceeded)
	case state.IsInvalidTransition(err):
		return http.StatusConflict, string(state.ErrCodeInvalidTransition)
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
