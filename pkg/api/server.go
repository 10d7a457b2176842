package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/brainydb/brainy/pkg/events"
	"github.com/brainydb/brainy/pkg/log"
	"github.com/brainydb/brainy/pkg/types"
	"github.com/rs/zerolog"
)

// sseHeartbeatInterval is spec.md §6's SSE_HEARTBEAT_INTERVAL.
const sseHeartbeatInterval = 15 * time.Second

// PeerSource answers GET /peers with this node's own info and its known
// peers. pkg/consensus.Discovery.Peers satisfies this shape when wrapped.
type PeerSource interface {
	Self() types.NodeInfo
	Peers() ([]types.NodeInfo, error)
}

// Config wires a Server's collaborators. Registry, Broker, and Peers may
// be nil; the corresponding endpoints then degrade gracefully (an empty
// registry answers every /rpc call with NotFound, a nil broker answers
// /events with only heartbeats).
type Config struct {
	NodeID string
	Addr   string

	Registry *Registry
	Broker   *events.Broker
	Peers    PeerSource
	Stream   *StreamHandler
}

// Server is brainy's HTTP control plane: GET /health, GET /peers,
// POST /rpc, GET /events, and POST /stream/{streamId}, per spec.md §6.
type Server struct {
	cfg       Config
	mux       *http.ServeMux
	httpSrv   *http.Server
	startedAt time.Time
	logger    zerolog.Logger

	connections atomic.Int64
}

// NewServer builds a Server; call Start to begin listening.
func NewServer(cfg Config) *Server {
	if cfg.Registry == nil {
		cfg.Registry = &Registry{}
	}
	s := &Server{
		cfg:       cfg,
		startedAt: time.Now(),
		logger:    log.WithComponent("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /peers", s.handlePeers)
	mux.HandleFunc("POST /rpc", s.handleRPC)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /stream/{streamId}", s.handleStream)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.mux = mux
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // /events and /stream hold connections open
	}
	return s
}

// Handle registers an additional route on the same mux, for endpoints
// outside the wire protocol proper (e.g. /metrics).
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Start begins serving in the background; errors other than a clean
// shutdown are logged at fatal per spec.md §7's logging convention for
// Fatal-class conditions.
func (s *Server) Start() {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal().Err(err).Msg("api: http server stopped unexpectedly")
		}
	}()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

type healthResponse struct {
	Status      string `json:"status"`
	NodeID      string `json:"nodeId"`
	Uptime      string `json:"uptime"`
	MemoryBytes uint64 `json:"memory"`
	Connections int64  `json:"connections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		NodeID:      s.cfg.NodeID,
		Uptime:      time.Since(s.startedAt).String(),
		MemoryBytes: mem.Alloc,
		Connections: s.connections.Load(),
	})
}

type peersResponse struct {
	Self  types.NodeInfo   `json:"self"`
	Peers []types.NodeInfo `json:"peers"`
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Peers == nil {
		writeJSON(w, http.StatusOK, peersResponse{Self: types.NodeInfo{ID: s.cfg.NodeID}})
		return
	}
	peers, err := s.cfg.Peers.Peers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, peersResponse{Self: s.cfg.Peers.Self(), Peers: peers})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: malformed rpc envelope: %w", err))
		return
	}
	resp := s.cfg.Registry.Dispatch(env)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("api: streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.connections.Add(1)
	defer s.connections.Add(-1)

	var sub events.Subscriber
	if s.cfg.Broker != nil {
		sub = s.cfg.Broker.Subscribe()
		defer s.cfg.Broker.Unsubscribe(sub)
	}

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub:
			if !ok {
				return
			}
			payload, err := json.Marshal(map[string]any{
				"event": ev.Type,
				"data":  ev,
			})
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, RPCError{Code: "InvalidArgument", Message: err.Error()})
}
