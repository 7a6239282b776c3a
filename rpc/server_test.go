package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agilira/themis"
)

func testInstance(t *testing.T) *themis.Instance {
	t.Helper()
	dir := t.TempDir()
	descs := []themis.Descriptor{
		{ID: 0, Group: "camera", Name: "width", Kind: themis.KindI32,
			Default:    themis.I32Value(1920),
			Validation: themis.Validation{Kind: themis.ValidationRange, Min: 1, Max: 4096}},
		{ID: 1, Group: "camera", Name: "label", Kind: themis.KindString,
			Default: themis.StringValue("front")},
		{ID: 2, Group: "camera", Name: "secret", Kind: themis.KindString,
			Default: themis.StringValue("hidden"), Internal: true},
		{ID: 3, Group: "camera", Name: "serial", Kind: themis.KindString,
			Default: themis.StringValue("SN-1"), ReadOnly: true},
		{ID: 4, Group: "camera", Name: "trigger", Kind: themis.KindBool,
			Default: themis.BoolValue(false), WriteOnly: true},
	}
	inst, err := themis.Open(themis.Config{
		DatabasePath: filepath.Join(dir, "params.db"),
		Descriptors:  descs,
		PollInterval: time.Hour,
		Audit:        themis.AuditConfig{Enabled: false},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { inst.Close() })
	return inst
}

func TestRESTReadReturnsDefault(t *testing.T) {
	inst := testInstance(t)
	srv := NewServer(inst)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/parameters/camera.width")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]int32
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["camera.width"] != 1920 {
		t.Fatalf("camera.width = %d, want 1920", body["camera.width"])
	}
}

func TestRESTReadRejectsInternalParameter(t *testing.T) {
	inst := testInstance(t)
	srv := NewServer(inst)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/parameters/camera.secret")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRESTWriteAppliesNewValue(t *testing.T) {
	inst := testInstance(t)
	srv := NewServer(inst)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(map[string]interface{}{"value": 800})
	resp, err := http.Post(ts.URL+"/api/parameters/camera.width", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	v, err := inst.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	n, _ := v.Int32()
	if n != 800 {
		t.Fatalf("camera.width = %d, want 800", n)
	}
}

// TestRESTWriteOutOfRangeIsRejected is scenario S6: a write outside a
// parameter's declared range must be rejected with an error response and
// must not change the stored value.
func TestRESTWriteOutOfRangeIsRejected(t *testing.T) {
	inst := testInstance(t)
	srv := NewServer(inst)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(map[string]interface{}{"value": 999999})
	resp, err := http.Post(ts.URL+"/api/parameters/camera.width", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	v, err := inst.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	n, _ := v.Int32()
	if n != 1920 {
		t.Fatalf("camera.width changed to %d despite rejected write", n)
	}
}

func TestRESTWriteRejectsReadOnlyParameter(t *testing.T) {
	inst := testInstance(t)
	srv := NewServer(inst)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(map[string]interface{}{"value": "SN-2"})
	resp, err := http.Post(ts.URL+"/api/parameters/camera.serial", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketReadWrite(t *testing.T) {
	inst := testInstance(t)
	srv := NewServer(inst)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)

	req := map[string]interface{}{
		"id":     1,
		"method": "read",
		"params": map[string]string{"name": "camera.label"},
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var resp rpcResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("read error: %s", resp.Error)
	}
}

// TestWebSocketWriteOutOfRangeReturnsError is the WebSocket-surface
// counterpart of S6.
func TestWebSocketWriteOutOfRangeReturnsError(t *testing.T) {
	inst := testInstance(t)
	srv := NewServer(inst)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)

	req := map[string]interface{}{
		"id":     2,
		"method": "write",
		"params": map[string]interface{}{"name": "camera.width", "value": -5},
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var resp rpcResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if resp.Error == "" {
		t.Fatalf("expected an out-of-range error, got result %v", resp.Result)
	}

	v, err := inst.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	n, _ := v.Int32()
	if n != 1920 {
		t.Fatalf("camera.width changed to %d despite rejected write", n)
	}
}

func TestWebSocketNotifiesSubscribedConnectionOnChange(t *testing.T) {
	inst := testInstance(t)
	srv := NewServer(inst)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)

	readReq := map[string]interface{}{
		"id":     1,
		"method": "read",
		"params": map[string]string{"name": "camera.label"},
	}
	if err := conn.WriteJSON(readReq); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var readResp rpcResponse
	if err := conn.ReadJSON(&readResp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	if err := inst.Set(1, themis.StringValue("rear")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	// themis.Value has no UnmarshalJSON, so the push is decoded with raw
	// params rather than into the server's notifyPush type.
	var push struct {
		Method string                     `json:"method"`
		Params map[string]json.RawMessage `json:"params"`
	}
	if err := conn.ReadJSON(&push); err != nil {
		t.Fatalf("ReadJSON (notify): %v", err)
	}
	if push.Method != "notify" {
		t.Fatalf("push.Method = %q, want notify", push.Method)
	}
}

func TestWebSocketWriteOnlyParameterAcceptsWrite(t *testing.T) {
	inst := testInstance(t)
	srv := NewServer(inst)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)

	writeReq := map[string]interface{}{
		"id":     1,
		"method": "write",
		"params": map[string]interface{}{"name": "camera.trigger", "value": true},
	}
	if err := conn.WriteJSON(writeReq); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var resp rpcResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("write error: %s", resp.Error)
	}
}

func TestAPIInfoReportsParameterCount(t *testing.T) {
	inst := testInstance(t)
	srv := NewServer(inst)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/info")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		ParameterCount int `json:"parameter_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ParameterCount != 5 {
		t.Fatalf("parameter_count = %d, want 5", body.ParameterCount)
	}
}
