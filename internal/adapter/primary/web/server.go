package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"photobooth/internal/domain"
	"photobooth/internal/eventbus"
	"photobooth/internal/logging"
	"photobooth/internal/usecase"
)

var log = logging.For("web")

// Publisher injects trigger events; *eventbus.Bus[domain.TriggerEvent]
// satisfies it.
type Publisher interface {
	Publish(domain.TriggerEvent) error
}

// StatusProvider exposes the coordinator status.
type StatusProvider interface {
	Status() usecase.Status
}

// StateProvider exposes the trigger state machine state.
type StateProvider interface {
	State() domain.TriggerState
}

// Server is a primary adapter that exposes the remote trigger, a status
// API and a small control page.
type Server struct {
	events Publisher
	status StatusProvider
	state  StateProvider
	server *http.Server
}

// NewServer creates the HTTP server bound to addr. status and state may be nil.
func NewServer(addr string, events Publisher, status StatusProvider, state StateProvider) *Server {
	mux := http.NewServeMux()
	srv := &Server{events: events, status: status, state: state}
	mux.HandleFunc("/trigger", srv.handleLegacyTrigger)
	mux.HandleFunc("/api/trigger", srv.handleTrigger)
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/", srv.handleRoot)

	srv.server = &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks and serves HTTP traffic.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", s.server.Addr)
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Warnf("shutdown: %v", err)
		}
		<-errCh
		return nil
	}
}

// fire injects exactly one trigger and returns without waiting for the
// snapshot sequence.
func (s *Server) fire() error {
	if err := s.events.Publish(domain.TriggerNow(domain.SourceWeb)); err != nil {
		log.Warnf("trigger rejected: %v", err)
		return err
	}
	return nil
}

func (s *Server) handleLegacyTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.fire(); err != nil {
		http.Error(w, "Camera not available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Camera triggered"))
}

type triggerAck struct {
	Status    string `json:"status"`
	RequestID string `json:"requestId"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := uuid.NewString()
	if err := s.fire(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, triggerAck{Status: "rejected", RequestID: id, Error: err.Error()})
		return
	}
	log.Debugf("trigger %s accepted from %s", id, r.RemoteAddr)
	respondJSON(w, http.StatusAccepted, triggerAck{Status: "triggered", RequestID: id})
}

// StatusView is the /api/status payload.
type StatusView struct {
	Booth   *usecase.Status `json:"booth,omitempty"`
	Trigger string          `json:"trigger,omitempty"`
	Events  *BusView        `json:"events,omitempty"`
	Uptime  string          `json:"uptime,omitempty"`
}

// BusView summarizes trigger bus counters.
type BusView struct {
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Replaced    uint64 `json:"replaced"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) statusView() StatusView {
	var view StatusView
	if s.status != nil {
		st := s.status.Status()
		view.Booth = &st
		if !st.StartedAt.IsZero() {
			view.Uptime = humanize.RelTime(st.StartedAt, time.Now(), "", "")
		}
	}
	if s.state != nil {
		view.Trigger = s.state.State().String()
	}
	if sp, ok := s.events.(interface{ Stats() eventbus.Stats }); ok {
		st := sp.Stats()
		view.Events = &BusView{
			Published:   st.Published,
			Delivered:   st.Delivered,
			Replaced:    st.Replaced,
			Subscribers: st.Subscribers,
		}
	}
	return view
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, http.StatusOK, s.statusView())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Photobooth</title>
    <style>
        body { font-family: sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; }
        h1 { color: #333; }
        .info { background: #f0f0f0; padding: 15px; border-radius: 5px; margin: 20px 0; }
        button { background: #007bff; color: white; border: none; padding: 20px 40px; font-size: 1.4em; border-radius: 5px; cursor: pointer; }
        button:hover { background: #0056b3; }
    </style>
</head>
<body>
    <h1>Photobooth</h1>
    <div class="info" id="status">Loading...</div>
    <button onclick="trigger()">Take picture</button>
    <script>
        async function loadStatus() {
            const res = await fetch('/api/status');
            const data = await res.json();
            let status = 'Trigger: ' + (data.trigger || 'n/a');
            if (data.booth) {
                status += '<br>Pictures: ' + data.booth.taken;
                if (data.booth.busy) {
                    status += ' (taking one now)';
                }
                if (data.booth.lastFile) {
                    status += '<br>Last: ' + data.booth.lastFile;
                }
                if (data.booth.lastError) {
                    status += '<br>Error: ' + data.booth.lastError;
                }
            }
            document.getElementById('status').innerHTML = status;
        }

        async function trigger() {
            await fetch('/api/trigger', {method: 'POST'});
            await loadStatus();
        }

        loadStatus();
        setInterval(loadStatus, 1000);
    </script>
</body>
</html>`))
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warnf("encode JSON: %v", err)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debugf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
