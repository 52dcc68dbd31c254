package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// JSONRPCVersion is the version tag carried by every framed message.
const JSONRPCVersion = "2.0"

// Standard JSON-RPC error codes used by the transport.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Message is one newline-delimited JSON object exchanged with an upstream
// process or a transport client. Requests carry Method; responses carry
// Result or Error. Notifications have no ID.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error payload of a response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewRequest builds a request with a string id. A nil params value is sent
// as an empty object.
func NewRequest(id, method string, params any) (*Message, error) {
	if params == nil {
		params = struct{}{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	rawID, _ := json.Marshal(id)
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      rawID,
		Method:  method,
		Params:  raw,
	}, nil
}

// NewResponse builds a success response echoing the given raw id.
func NewResponse(id json.RawMessage, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Message{JSONRPC: JSONRPCVersion, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response echoing the given raw id.
func NewErrorResponse(id json.RawMessage, code int, message string) *Message {
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// IDKey normalises a raw JSON id into a comparable key. String ids map to
// their unquoted value and numbers to their literal text. The second return
// value is false for absent or null ids.
func IDKey(raw json.RawMessage) (string, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "", false
	}
	if strings.HasPrefix(s, `"`) {
		unq, err := strconv.Unquote(s)
		if err != nil {
			var out string
			if err := json.Unmarshal(raw, &out); err != nil {
				return "", false
			}
			return out, true
		}
		return unq, true
	}
	return s, true
}
