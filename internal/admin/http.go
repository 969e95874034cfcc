package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/fly-207/skynet/internal/actor"
	"github.com/fly-207/skynet/internal/handle"
)

// StatsProvider is the subset of *actor.Node the HTTP surface needs. A
// narrow interface here keeps internal/admin's one dependency on
// internal/actor limited to a single read-only method.
type StatsProvider interface {
	Stats() actor.Stats
}

// MonitorEvent is one line of the websocket stream: a stuck/unstuck
// notice forwarded from internal/monitor.
type MonitorEvent struct {
	Time    time.Time `json:"time"`
	Worker  int       `json:"worker"`
	Source  string    `json:"source"`
	Dest    string    `json:"dest"`
	Message string    `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// HTTPServer serves /stats (a JSON snapshot) and /ws/monitor (a
// websocket stream of monitor events), so an operator can observe
// scheduler health without attaching a debugger.
type HTTPServer struct {
	router http.Handler
	log    *slog.Logger

	events chan MonitorEvent
}

// NewHTTPServer builds the router. node supplies /stats; Broadcast feeds
// /ws/monitor.
func NewHTTPServer(node StatsProvider, log *slog.Logger) *HTTPServer {
	s := &HTTPServer{log: log, events: make(chan MonitorEvent, 64)}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(node.Stats())
	})
	r.Get("/ws/monitor", s.serveMonitorWS)

	s.router = r
	return s
}

func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Broadcast enqueues ev for the next /ws/monitor reader. One shared
// channel backs every connection, so only one operator session receives
// any given event; non-blocking, so a slow or absent reader never stalls
// the monitor goroutine.
func (s *HTTPServer) Broadcast(ev MonitorEvent) {
	select {
	case s.events <- ev:
	default:
	}
}

// Report implements monitor.Sink: a stuck-worker notice is turned into a
// MonitorEvent and forwarded to /ws/monitor.
func (s *HTTPServer) Report(worker int, source, dest handle.Handle, message string) {
	s.Broadcast(MonitorEvent{
		Time:    time.Now(),
		Worker:  worker,
		Source:  source.String(),
		Dest:    dest.String(),
		Message: message,
	})
}

func (s *HTTPServer) serveMonitorWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("admin: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	for ev := range s.events {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
