package transport

import (
	"encoding/json"
	"fmt"
)

// rpcVersion is the JSON-RPC protocol version spoken over WebSocket.
const rpcVersion = "2.0"

// rpcRequest is an outbound JSON-RPC frame.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcResponse is an inbound JSON-RPC frame.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object returned by the remote side.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// newRPCRequest builds a request frame for method with the given params.
func newRPCRequest(id int64, method string, params any) (*rpcRequest, error) {
	req := &rpcRequest{
		JSONRPC: rpcVersion,
		ID:      id,
		Method:  method,
	}

	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = raw
	}

	return req, nil
}
