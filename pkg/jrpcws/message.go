package jrpcws

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const Version = "2.0"

var (
	ErrNotConnected     = errors.New("jrpcws: not connected")
	ErrConnectionClosed = errors.New("jrpcws: connection closed")
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      string `json:"id"`
}

// Message is a frame received from the server. Responses carry an ID,
// notifications carry either Notification (rpc-websockets) or Method
// (plain JSON-RPC) and no ID.
type Message struct {
	JSONRPC      string          `json:"jsonrpc,omitempty"`
	ID           json.RawMessage `json:"id,omitempty"`
	Method       string          `json:"method,omitempty"`
	Notification string          `json:"notification,omitempty"`
	Params       json.RawMessage `json:"params,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        *Error          `json:"error,omitempty"`
}

// Error is an application level error returned by the remote procedure.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jrpcws: remote error %d: %s", e.Code, e.Message)
}

func (m *Message) id() string {
	raw := strings.TrimSpace(string(m.ID))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.ID, &s); err == nil {
		return s
	}
	return raw
}

// Topic returns the notification name of the message, if any.
func (m *Message) Topic() string {
	if m.Notification != "" {
		return m.Notification
	}
	return m.Method
}

func decodeResult(msg *Message, result any) error {
	if msg.Error != nil {
		return msg.Error
	}
	if result == nil || isNull(msg.Result) {
		return nil
	}
	if err := json.Unmarshal(msg.Result, result); err != nil {
		return fmt.Errorf("jrpcws: decode result: %w", err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func orEmpty(params any) any {
	if params == nil {
		return struct{}{}
	}
	return params
}
