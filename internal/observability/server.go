// Package observability exposes a running simulation over HTTP: a REST API
// for point-in-time snapshots and a websocket feed that mirrors every event
// published on the simulation's event bus as it happens.
package observability

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chainmesh/core/eventbus"
	"chainmesh/core/logging"
	"chainmesh/core/sim"
)

var allKinds = []eventbus.Kind{
	eventbus.BlockProposed,
	eventbus.BlockFinalized,
	eventbus.IBCPacketSend,
	eventbus.IBCPacketRecv,
	eventbus.IBCAckSend,
	eventbus.IBCAckRecv,
	eventbus.ConsensusRound,
	eventbus.NetworkDrop,
	eventbus.Error,
}

// wireEvent is the JSON shape pushed to every connected websocket client.
type wireEvent struct {
	Kind    string `json:"kind"`
	ChainID string `json:"chain_id,omitempty"`
	NodeID  string `json:"node_id,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// ChainStats is the point-in-time view of one chain returned by
// /api/chains.
type ChainStats struct {
	ChainID     string `json:"chain_id"`
	Height      uint64 `json:"height"`
	MempoolSize int    `json:"mempool_size"`
}

// NodeStats is the point-in-time view of one node returned by /api/nodes.
type NodeStats struct {
	NodeID        string `json:"node_id"`
	Address       string `json:"address"`
	ChainHeight   uint64 `json:"chain_height"`
	MempoolSize   int    `json:"mempool_size"`
	ConsensusName string `json:"consensus_name"`
}

// RelayerStats is the point-in-time view of one relayer returned by
// /api/relayers.
type RelayerStats struct {
	RelayerID      string `json:"relayer_id"`
	PacketsRelayed uint64 `json:"packets_relayed"`
	AcksRelayed    uint64 `json:"acks_relayed"`
	Failures       uint64 `json:"failures"`
}

// Summary is the aggregate view returned by /api/stats.
type Summary struct {
	ChainCount   int `json:"chain_count"`
	NodeCount    int `json:"node_count"`
	RelayerCount int `json:"relayer_count"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes ctrl over HTTP. Every event published on ctrl's bus is
// broadcast to connected websocket clients as JSON.
type Server struct {
	ctrl *sim.Controller

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]struct{}

	subTokens []int
	httpSrv   *http.Server
}

// New builds a Server wired to ctrl's event bus. Call Start to begin
// serving.
func New(ctrl *sim.Controller) *Server {
	s := &Server{
		ctrl:    ctrl,
		clients: make(map[*websocket.Conn]struct{}),
	}

	bus := ctrl.EventBus()
	for _, kind := range allKinds {
		token := bus.Subscribe(kind, s.onEvent)
		s.subTokens = append(s.subTokens, token)
	}
	return s
}

func (s *Server) onEvent(e eventbus.Event) {
	msg := wireEvent{Kind: e.Kind.String(), ChainID: e.ChainID, NodeID: e.NodeID, Detail: e.Detail}
	line, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(r.Context(), "websocket upgrade failed", "err", err)
		return
	}
	s.clientsMu.Lock()
	s.clients[conn] = struct{}{}
	s.clientsMu.Unlock()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, Summary{
		ChainCount:   len(s.ctrl.Chains()),
		NodeCount:    len(s.ctrl.Nodes()),
		RelayerCount: len(s.ctrl.Relayers()),
	})
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	var out []ChainStats
	for _, c := range s.ctrl.Chains() {
		head := c.Head()
		out = append(out, ChainStats{ChainID: c.ID(), Height: head.Header.Height, MempoolSize: c.Mempool().Size()})
	}
	writeJSON(w, out)
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	var out []NodeStats
	for _, n := range s.ctrl.Nodes() {
		snap := n.SnapshotState()
		out = append(out, NodeStats{
			NodeID: n.ID(), Address: n.Address(), ChainHeight: snap.ChainHeight,
			MempoolSize: snap.MempoolSize, ConsensusName: snap.ConsensusName,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleRelayers(w http.ResponseWriter, r *http.Request) {
	var out []RelayerStats
	for _, rl := range s.ctrl.Relayers() {
		st := rl.StatsSnapshot()
		out = append(out, RelayerStats{
			RelayerID: rl.Name(), PacketsRelayed: st.PacketsRelayed, AcksRelayed: st.AcksRelayed, Failures: st.Failures,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("chainmesh observability API\nEndpoints: /api/stats, /api/chains, /api/nodes, /api/relayers, /ws"))
	})
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/chains", s.handleChains)
	mux.HandleFunc("/api/nodes", s.handleNodes)
	mux.HandleFunc("/api/relayers", s.handleRelayers)
	return mux
}

// Start launches the HTTP server in a new goroutine, listening on addr.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.handler()}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Error(context.Background(), "observability server exited", "err", err)
		}
	}()
	logging.Info(context.Background(), "observability server listening", "addr", addr)
	return nil
}

// Stop gracefully shuts down the HTTP server and closes every websocket
// connection.
func (s *Server) Stop() {
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(ctx)
	}

	s.clientsMu.Lock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	bus := s.ctrl.EventBus()
	for _, token := range s.subTokens {
		bus.Unsubscribe(token)
	}
}
