// Package rpc is the JSON-RPC/WebSocket + REST control surface for a
// themis Instance (SPEC_FULL.md §4.G): `read`/`write`/`save`/`restore`/
// `factory_reset` over a persistent per-connection WebSocket with a
// `notify` push on change, a plain-REST mirror for clients that don't
// want a WebSocket, and an `/api/info` diagnostics endpoint.
//
// Grounded on _examples/original_source/jsonrpc_server/lib/src/ws_server.rs
// for the request/response shape and the per-connection
// subscribe-on-read/internal/readonly enforcement semantics, re-expressed
// with github.com/gorilla/websocket in the idiom of
// _examples/zot-ui-engine/internal/server/websocket.go (upgrader,
// per-connection read pump, a buffered send channel per connection,
// panic-recovering message dispatch). The REST mirror is grounded on
// _examples/original_source/jsonrpc_server/lib/src/rest_server.rs.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package rpc

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	errors "github.com/agilira/go-errors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agilira/themis"
)

const pingInterval = 15 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server adapts one themis.Instance onto the JSON-RPC/WebSocket/REST
// surface. One Server serves one Instance; callers mount Handler() under
// whatever net/http.Server or mux the embedding application already runs.
type Server struct {
	inst *themis.Instance
	mux  *http.ServeMux

	connsMu sync.Mutex
	conns   map[*clientConn]struct{}
}

// NewServer builds a Server around inst and registers its routes on a
// fresh ServeMux: /ws, /api/info, /api/parameters/{name} (GET/POST),
// /metrics.
func NewServer(inst *themis.Instance) *Server {
	s := &Server{
		inst:  inst,
		mux:   http.NewServeMux(),
		conns: make(map[*clientConn]struct{}),
	}
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /api/info", s.handleInfo)
	s.mux.HandleFunc("GET /api/parameters/{name}", s.handleRESTRead)
	s.mux.HandleFunc("POST /api/parameters/{name}", s.handleRESTWrite)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// Handler returns the http.Handler embedding applications mount.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// rpcRequest is the wire shape of one JSON-RPC call, mirroring
// ws_server.rs's RpcRequest (id/method/params).
type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// rpcResponse mirrors RpcResponse: an echoed id plus either a result or
// an error, never both.
type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result interface{}     `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// notifyPush is the unsolicited "notify" message a subscribed connection
// receives whenever a parameter it has read changes.
type notifyPush struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  map[string]themis.Value `json:"params"`
}

// clientConn is one live WebSocket connection: a read pump (below) and a
// buffered send channel a writer goroutine drains, exactly the
// zot-ui-engine split of "read loop" from "write loop" so a slow/stuck
// client can't block the dispatcher that feeds it.
type clientConn struct {
	ws     *websocket.Conn
	send   chan []byte
	closed int32 // atomic bool

	subMu sync.Mutex
	subs  map[themis.ParamID]bool
}

func (c *clientConn) isClosed() bool {
	return atomic.LoadInt32(&c.closed) != 0
}

func (c *clientConn) markClosed() {
	atomic.StoreInt32(&c.closed, 1)
}

// enqueue best-effort sends payload to the connection's writer goroutine;
// a full send buffer (a stalled client) drops the push rather than
// blocking the reconciler's dispatch callback.
func (c *clientConn) enqueue(payload []byte) {
	if c.isClosed() {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	activeConnections.Inc()

	c := &clientConn{
		ws:   ws,
		send: make(chan []byte, 32),
		subs: make(map[themis.ParamID]bool),
	}
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()

	go s.writePump(c)
	s.readPump(c)
}

func (s *Server) writePump(c *clientConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(c *clientConn) {
	defer s.disconnect(c)

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		s.processMessage(c, message)
	}
}

// processMessage decodes and handles one JSON-RPC request, recovering
// from a handler panic so one bad message never takes the connection (or
// the server) down, matching processMessage's defer/recover in
// zot-ui-engine's websocket.go.
func (s *Server) processMessage(c *clientConn, message []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.enqueue(mustMarshal(rpcResponse{Error: "internal error"}))
		}
	}()

	var req rpcRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.enqueue(mustMarshal(rpcResponse{Error: "malformed request"}))
		return
	}

	result, err := s.dispatch(c, req.Method, req.Params)
	status := "ok"
	resp := rpcResponse{ID: req.ID}
	if err != nil {
		status = "error"
		resp.Error = err.Error()
	} else {
		resp.Result = result
	}
	rpcCallsTotal.WithLabelValues(req.Method, status).Inc()
	c.enqueue(mustMarshal(resp))
}

// dispatch implements the five operations spec.md assigns the JSON-RPC
// surface, plus the subscribe-on-read side effect ws_server.rs's "read"
// arm performs: the first successful read of a parameter on a connection
// subscribes that connection to future notify pushes for it.
func (s *Server) dispatch(c *clientConn, method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case "read":
		return s.handleRead(c, params)
	case "write":
		return s.handleWrite(params)
	case "save":
		return s.handleSave(params)
	case "restore":
		return s.handleRestore(params)
	case "factory_reset":
		return map[string]string{"status": "reset done"}, s.inst.FactoryReset()
	default:
		return nil, errors.New(themis.ErrCodeNotAllowed, "unknown method")
	}
}

type nameParam struct {
	Name string `json:"name"`
}

func (s *Server) handleRead(c *clientConn, params json.RawMessage) (interface{}, error) {
	var p nameParam
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return nil, errors.New(themis.ErrCodeInvalidState, "could not decode parameter name")
	}

	id, desc, err := s.resolveVisible(p.Name)
	if err != nil {
		return nil, err
	}
	if desc.WriteOnly {
		return map[string]themis.Value{}, nil
	}

	v, err := s.inst.Get(id)
	if err != nil {
		return nil, err
	}

	c.subMu.Lock()
	alreadySubscribed := c.subs[id]
	c.subs[id] = true
	c.subMu.Unlock()
	if !alreadySubscribed {
		s.inst.Watch(id, s.pushNotifier(c, p.Name, desc))
	}

	return map[string]themis.Value{p.Name: v}, nil
}

type writeParam struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

func (s *Server) handleWrite(params json.RawMessage) (interface{}, error) {
	var p writeParam
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return nil, errors.New(themis.ErrCodeInvalidState, "could not decode write request")
	}

	id, desc, err := s.resolveVisible(p.Name)
	if err != nil {
		return nil, err
	}
	if desc.ReadOnly {
		return nil, errors.New(themis.ErrCodeNotAllowed, "readonly parameter cannot be changed: "+p.Name)
	}

	v, err := valueFromJSON(desc.Kind, p.Value)
	if err != nil {
		return nil, err
	}
	if err := s.inst.Set(id, v); err != nil {
		return nil, err
	}
	applied, err := s.inst.Get(id)
	if err != nil {
		return nil, err
	}
	return map[string]themis.Value{p.Name: applied}, nil
}

type pathParam struct {
	Path string `json:"path"`
}

func (s *Server) handleSave(params json.RawMessage) (interface{}, error) {
	var p pathParam
	if err := json.Unmarshal(params, &p); err != nil || p.Path == "" {
		return nil, errors.New(themis.ErrCodeInvalidState, "save requires a path")
	}
	if err := s.inst.Save(p.Path); err != nil {
		return nil, err
	}
	return map[string]string{"status": "saved"}, nil
}

func (s *Server) handleRestore(params json.RawMessage) (interface{}, error) {
	var p pathParam
	if err := json.Unmarshal(params, &p); err != nil || p.Path == "" {
		return nil, errors.New(themis.ErrCodeInvalidState, "restore requires a path")
	}
	if err := s.inst.Restore(p.Path); err != nil {
		return nil, err
	}
	return map[string]string{"status": "restored"}, nil
}

// resolveVisible resolves name to its ParamID and Descriptor, rejecting
// unknown names and Internal parameters -- the JSON-RPC/REST surface's
// own visibility rule, never enforced by the C-ABI façade (spec.md §9).
func (s *Server) resolveVisible(name string) (themis.ParamID, themis.Descriptor, error) {
	id, ok := s.inst.Lookup(name)
	if !ok {
		return 0, themis.Descriptor{}, errors.New(themis.ErrCodeNotFound, "unknown parameter "+name)
	}
	desc, _ := s.inst.Describe(id)
	if desc.Internal {
		return 0, themis.Descriptor{}, errors.New(themis.ErrCodeNotAllowed, "access internal parameter forbidden: "+name)
	}
	return id, desc, nil
}

// pushNotifier builds the reconciler callback that turns a local or
// remote change into a "notify" push on c -- skipped for WriteOnly
// parameters, which spec.md says never appear in read/notify.
func (s *Server) pushNotifier(c *clientConn, name string, desc themis.Descriptor) func(themis.Value) {
	start := time.Now()
	return func(v themis.Value) {
		if desc.WriteOnly {
			return
		}
		notifyPushesTotal.Inc()
		dispatchLatencySeconds.Observe(time.Since(start).Seconds())
		c.enqueue(mustMarshal(notifyPush{
			JSONRPC: "2.0",
			Method:  "notify",
			Params:  map[string]themis.Value{name: v},
		}))
	}
}

func (s *Server) disconnect(c *clientConn) {
	c.markClosed()
	close(c.send)
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
	activeConnections.Dec()
}

// handleInfo serves /api/info: a plain net/http handler, since component
// G treats the HTTP/WS transport plumbing below this layer as an external
// collaborator -- this is the one handler needed to satisfy the
// operation, not a reimplementation of an HTTP server.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	descs := s.inst.Descriptors()
	params := make([]map[string]interface{}, 0, len(descs))
	for _, d := range descs {
		if d.Internal {
			continue
		}
		params = append(params, map[string]interface{}{
			"name":           d.FullName(),
			"title":          d.Title,
			"comment":        d.Comment,
			"parameter_type": d.Kind.String(),
			"group":          d.Group,
		})
	}
	info := map[string]interface{}{
		"parameter_count": len(descs),
		"parameters":      params,
		"stats":           s.inst.Stats(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}

// handleRESTRead mirrors the "read" RPC method as GET /api/parameters/{name},
// for clients that don't want a WebSocket (supplemental from
// rest_server.rs, dropped by the distillation).
func (s *Server) handleRESTRead(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	id, desc, err := s.resolveVisible(name)
	if err != nil {
		writeRESTError(w, http.StatusNotFound, err)
		return
	}
	if desc.WriteOnly {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]themis.Value{})
		return
	}
	v, err := s.inst.Get(id)
	if err != nil {
		writeRESTError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]themis.Value{name: v})
}

// handleRESTWrite mirrors the "write" RPC method as POST /api/parameters/{name}
// with a {"value": ...} JSON body.
func (s *Server) handleRESTWrite(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	id, desc, err := s.resolveVisible(name)
	if err != nil {
		writeRESTError(w, http.StatusNotFound, err)
		return
	}
	if desc.ReadOnly {
		writeRESTError(w, http.StatusForbidden, errors.New(themis.ErrCodeNotAllowed, "readonly parameter cannot be changed: "+name))
		return
	}

	var body struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeRESTError(w, http.StatusBadRequest, err)
		return
	}
	v, err := valueFromJSON(desc.Kind, body.Value)
	if err != nil {
		writeRESTError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.inst.Set(id, v); err != nil {
		writeRESTError(w, restStatusFor(err), err)
		return
	}

	applied, _ := s.inst.Get(id)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]themis.Value{name: applied})
}

func restStatusFor(err error) int {
	switch {
	case themis.ErrOutOfRange(err), themis.ErrConstParameter(err),
		themis.ErrorCode(err) == themis.ErrCodeNotAllowed:
		return http.StatusUnprocessableEntity
	case themis.ErrNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeRESTError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// valueFromJSON decodes a raw JSON value into a themis.Value typed per
// kind -- the write-side counterpart of themis.Value's own MarshalJSON.
func valueFromJSON(kind themis.Kind, raw json.RawMessage) (themis.Value, error) {
	switch kind {
	case themis.KindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return themis.Value{}, errors.New(themis.ErrCodeTypeMismatch, "expected a bool value")
		}
		return themis.BoolValue(b), nil
	case themis.KindI32:
		n, err := jsonNumber(raw)
		if err != nil {
			return themis.Value{}, err
		}
		return themis.I32Value(int32(n)), nil
	case themis.KindU32:
		n, err := jsonNumber(raw)
		if err != nil {
			return themis.Value{}, err
		}
		return themis.U32Value(uint32(n)), nil
	case themis.KindI64:
		n, err := jsonNumber(raw)
		if err != nil {
			return themis.Value{}, err
		}
		return themis.I64Value(int64(n)), nil
	case themis.KindU64:
		n, err := jsonNumber(raw)
		if err != nil {
			return themis.Value{}, err
		}
		return themis.U64Value(uint64(n)), nil
	case themis.KindF32:
		n, err := jsonNumber(raw)
		if err != nil {
			return themis.Value{}, err
		}
		return themis.F32Value(float32(n)), nil
	case themis.KindF64:
		n, err := jsonNumber(raw)
		if err != nil {
			return themis.Value{}, err
		}
		return themis.F64Value(n), nil
	case themis.KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return themis.Value{}, errors.New(themis.ErrCodeTypeMismatch, "expected a string value")
		}
		return themis.StringValue(s), nil
	case themis.KindBlob:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return themis.Value{}, errors.New(themis.ErrCodeTypeMismatch, "expected a base64-encoded blob value")
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return themis.Value{}, errors.New(themis.ErrCodeTypeMismatch, "invalid base64 blob value")
		}
		return themis.BlobValue(data), nil
	default:
		return themis.Value{}, errors.New(themis.ErrCodeTypeMismatch, "parameter has unknown kind")
	}
}

func jsonNumber(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, errors.New(themis.ErrCodeTypeMismatch, "expected a numeric value")
	}
	return n, nil
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return b
}
