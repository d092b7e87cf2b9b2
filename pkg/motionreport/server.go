// Motion report API server
//
// Serves sampled stepper motion over HTTP and WebSocket so external
// tooling can inspect smoothing behavior on a live move queue.
//
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package motionreport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	uuid "github.com/satori/go.uuid"

	"klipper-stepgen/pkg/log"
	"klipper-stepgen/pkg/metrics"
)

// Server exposes registered samplers over HTTP and WebSocket.
type Server struct {
	httpServer *http.Server
	addr       string

	mu       sync.RWMutex
	samplers map[string]Sampler

	wsUpgrader websocket.Upgrader
	wsClients  map[string]*wsClient
	wsClientMu sync.RWMutex

	running atomic.Bool
	logger  *log.Logger

	registry     *metrics.Registry
	dumpRequests *metrics.Counter
	dumpDuration *metrics.Histogram
	clientGauge  *metrics.Gauge
}

// NewServer creates a motion report server listening on addr.
func NewServer(addr string) *Server {
	s := &Server{
		addr:      addr,
		samplers:  make(map[string]Sampler),
		wsClients: make(map[string]*wsClient),
		logger:    log.New("motionreport"),
		registry:  metrics.NewRegistry(),
		dumpRequests: metrics.NewCounter("motionreport_dump_requests_total",
			"Motion dump requests served"),
		dumpDuration: metrics.NewHistogram("motionreport_dump_duration_seconds",
			"Motion dump sampling duration", metrics.DefaultBuckets()),
		clientGauge: metrics.NewGauge("motionreport_ws_clients",
			"Connected WebSocket clients"),
	}
	s.registry.MustRegister(s.dumpRequests)
	s.registry.MustRegister(s.dumpDuration)
	s.registry.MustRegister(s.clientGauge)
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return s
}

// Register adds a named sampler.
func (s *Server) Register(name string, sampler Sampler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samplers[name] = sampler
}

func (s *Server) sampler(name string) (Sampler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if name == "" && len(s.samplers) == 1 {
		for _, sm := range s.samplers {
			return sm, true
		}
	}
	sm, ok := s.samplers[name]
	return sm, ok
}

// Handler returns the HTTP handler serving the motion report endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/motion/status", s.handleStatus)
	mux.HandleFunc("/motion/dump", s.handleDump)
	mux.HandleFunc("/motion/ws", s.handleWebSocket)
	mux.HandleFunc("/motion/metrics", s.handleMetrics)
	return mux
}

// Start starts the server. It blocks until the server stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Handler()}
	s.running.Store(true)
	s.logger.Infof("motion report server starting on %s", s.addr)
	return s.httpServer.ListenAndServe()
}

// Stop stops the server and closes all WebSocket clients.
func (s *Server) Stop() error {
	s.running.Store(false)

	s.wsClientMu.Lock()
	for _, client := range s.wsClients {
		client.Close()
	}
	s.wsClients = make(map[string]*wsClient)
	s.wsClientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status := make(map[string]any, len(s.samplers))
	for name, sm := range s.samplers {
		status[name] = sm.Status()
	}
	s.mu.RUnlock()

	s.writeJSON(w, map[string]any{"result": status})
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sm, ok := s.sampler(q.Get("name"))
	if !ok {
		s.writeJSONError(w, fmt.Errorf("unknown sampler '%s'", q.Get("name")))
		return
	}
	start, err := strconv.ParseFloat(q.Get("start"), 64)
	if err != nil {
		s.writeJSONError(w, fmt.Errorf("invalid 'start' parameter"))
		return
	}
	end, err := strconv.ParseFloat(q.Get("end"), 64)
	if err != nil {
		s.writeJSONError(w, fmt.Errorf("invalid 'end' parameter"))
		return
	}
	interval := 0.001
	if v := q.Get("interval"); v != "" {
		if interval, err = strconv.ParseFloat(v, 64); err != nil {
			s.writeJSONError(w, fmt.Errorf("invalid 'interval' parameter"))
			return
		}
	}

	samples, err := s.timedSample(sm, start, end, interval)
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"result": map[string]any{"samples": samples}})
}

func (s *Server) timedSample(sm Sampler, start, end, interval float64) ([]Sample, error) {
	s.dumpRequests.Inc(nil)
	done := s.dumpDuration.Timer(nil)
	defer done()
	return sm.Sample(start, end, interval)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(s.registry.Gather()))
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeJSONError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": err.Error()},
	})
}

// WebSocket request/response framing

type wsRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
	ID     any            `json:"id,omitempty"`
}

type wsResponse struct {
	Result any      `json:"result,omitempty"`
	Error  *wsError `json:"error,omitempty"`
	ID     any      `json:"id,omitempty"`
}

type wsError struct {
	Message string `json:"message"`
}

// wsClient is one WebSocket client connection.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	mu     sync.Mutex
}

func (s *Server) newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:     uuid.NewV4().String(),
		conn:   conn,
		server: s,
		sendCh: make(chan any, 64),
		done:   make(chan struct{}),
	}
}

func (c *wsClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.logger.Warnf("dropping message to client %s (channel full)", c.id)
	}
}

func (c *wsClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.conn.Close()
}

func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.server.logger.Warnf("client %s read error: %v", c.id, err)
			}
			break
		}
		c.handleMessage(message)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.Send(wsResponse{Error: &wsError{Message: "parse error"}})
		return
	}

	result, err := c.server.dispatchMethod(req.Method, req.Params)
	if err != nil {
		c.Send(wsResponse{Error: &wsError{Message: err.Error()}, ID: req.ID})
		return
	}
	c.Send(wsResponse{Result: result, ID: req.ID})
}

func (s *Server) dispatchMethod(method string, params map[string]any) (any, error) {
	switch method {
	case "motion.status":
		s.mu.RLock()
		status := make(map[string]any, len(s.samplers))
		for name, sm := range s.samplers {
			status[name] = sm.Status()
		}
		s.mu.RUnlock()
		return status, nil

	case "motion.dump":
		name, _ := params["name"].(string)
		sm, ok := s.sampler(name)
		if !ok {
			return nil, fmt.Errorf("unknown sampler '%s'", name)
		}
		start, ok1 := params["start"].(float64)
		end, ok2 := params["end"].(float64)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("missing 'start' or 'end' parameter")
		}
		interval := 0.001
		if v, ok := params["interval"].(float64); ok {
			interval = v
		}
		samples, err := s.timedSample(sm, start, end, interval)
		if err != nil {
			return nil, err
		}
		return map[string]any{"samples": samples}, nil

	default:
		return nil, fmt.Errorf("method not found: %s", method)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("websocket upgrade error: %v", err)
		return
	}

	client := s.newWSClient(conn)

	s.wsClientMu.Lock()
	s.wsClients[client.id] = client
	s.wsClientMu.Unlock()
	s.clientGauge.Inc(nil)

	s.logger.Infof("client %s connected", client.id)

	go client.writePump()
	client.readPump()
}

func (s *Server) removeClient(client *wsClient) {
	s.wsClientMu.Lock()
	delete(s.wsClients, client.id)
	s.wsClientMu.Unlock()
	s.clientGauge.Dec(nil)
	s.logger.Infof("client %s disconnected", client.id)
}
