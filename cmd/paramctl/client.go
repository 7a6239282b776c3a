package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/gorilla/websocket"
)

// rpcClient is paramctl's connection to a running paramd: the REST
// mirror for one-shot get/set/save/restore/factory-reset, and a
// WebSocket dial for watch's long-lived subscription.
type rpcClient struct {
	baseURL    string
	httpClient *http.Client
}

func newRPCClient(baseURL string) *rpcClient {
	return &rpcClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Get fetches name's current value as a raw JSON value, keyed by name.
func (c *rpcClient) Get(name string) (json.RawMessage, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/api/parameters/" + name)
	if err != nil {
		return nil, errors.New("PARAMCTL_NETWORK", "failed to reach paramd").WithContext("name", name)
	}
	defer resp.Body.Close()

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.New("PARAMCTL_DECODE", "malformed response from paramd")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errorFromBody(resp.StatusCode, body)
	}
	return body[name], nil
}

// Set writes value (already JSON-encoded) to name.
func (c *rpcClient) Set(name string, value json.RawMessage) error {
	payload, _ := json.Marshal(map[string]json.RawMessage{"value": value})
	resp, err := c.httpClient.Post(c.baseURL+"/api/parameters/"+name, "application/json", bytes.NewReader(payload))
	if err != nil {
		return errors.New("PARAMCTL_NETWORK", "failed to reach paramd").WithContext("name", name)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return errors.New("PARAMCTL_WRITE_REJECTED", body["error"]).WithContext("name", name)
	}
	return nil
}

// Info fetches /api/info.
func (c *rpcClient) Info() (map[string]interface{}, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/api/info")
	if err != nil {
		return nil, errors.New("PARAMCTL_NETWORK", "failed to reach paramd")
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.New("PARAMCTL_DECODE", "malformed response from paramd")
	}
	return body, nil
}

// call invokes a save/restore/factory_reset style RPC method over the
// WebSocket endpoint, returning its result field.
func (c *rpcClient) call(method string, params interface{}) (json.RawMessage, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, errors.New("PARAMCTL_NETWORK", "failed to dial paramd websocket")
	}
	defer conn.Close()

	req := map[string]interface{}{"id": 1, "method": method, "params": params}
	if err := conn.WriteJSON(req); err != nil {
		return nil, errors.New("PARAMCTL_NETWORK", "failed to send request")
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
	}
	if err := conn.ReadJSON(&resp); err != nil {
		return nil, errors.New("PARAMCTL_NETWORK", "failed to read response")
	}
	if resp.Error != "" {
		return nil, errors.New("PARAMCTL_RPC_ERROR", resp.Error)
	}
	return resp.Result, nil
}

// Watch opens a WebSocket, subscribes to name via "read", and streams
// every subsequent notify push to onChange until the connection closes
// or the caller's done channel fires.
func (c *rpcClient) Watch(name string, onChange func(json.RawMessage), done <-chan struct{}) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return errors.New("PARAMCTL_NETWORK", "failed to dial paramd websocket")
	}
	defer conn.Close()

	req := map[string]interface{}{"id": 1, "method": "read", "params": map[string]string{"name": name}}
	if err := conn.WriteJSON(req); err != nil {
		return errors.New("PARAMCTL_NETWORK", "failed to subscribe")
	}
	var ack struct {
		Error string `json:"error"`
	}
	if err := conn.ReadJSON(&ack); err != nil {
		return errors.New("PARAMCTL_NETWORK", "failed to read subscribe ack")
	}
	if ack.Error != "" {
		return errors.New("PARAMCTL_RPC_ERROR", ack.Error)
	}

	go func() {
		<-done
		conn.Close()
	}()

	for {
		var push struct {
			Method string                     `json:"method"`
			Params map[string]json.RawMessage `json:"params"`
		}
		if err := conn.ReadJSON(&push); err != nil {
			return nil
		}
		if push.Method == "notify" {
			if v, ok := push.Params[name]; ok {
				onChange(v)
			}
		}
	}
}

func errorFromBody(status int, body map[string]json.RawMessage) error {
	msg := fmt.Sprintf("request failed with status %d", status)
	if raw, ok := body["error"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			msg = s
		}
	}
	return errors.New("PARAMCTL_REQUEST_FAILED", msg)
}
