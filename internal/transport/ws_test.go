package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// rpcEcho serves one WebSocket connection that answers every request with
// respond(req), or with a canned error when respond returns nil.
func rpcEcho(t *testing.T, respond func(req *rpcRequest) any) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req rpcRequest
			if err := json.Unmarshal(message, &req); err != nil {
				continue
			}

			resp := rpcResponse{JSONRPC: rpcVersion, ID: req.ID}
			if result := respond(&req); result != nil {
				raw, _ := json.Marshal(result)
				resp.Result = raw
			} else {
				resp.Error = &RPCError{Code: -32601, Message: "method not found"}
			}

			raw, _ := json.Marshal(resp)
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSTransport_Perform(t *testing.T) {
	srv := rpcEcho(t, func(req *rpcRequest) any {
		if req.Method != "getUser" {
			return nil
		}
		var params map[string]any
		json.Unmarshal(req.Params, &params)
		return map[string]any{"id": params["id"], "name": "alice"}
	})
	defer srv.Close()

	tr, err := NewWS(context.Background(), wsURL(srv), time.Minute, 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWS: %v", err)
	}
	defer tr.Close()

	res, err := tr.Perform(context.Background(), "getUser", Params{"id": "u1"})
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(res.Bytes(), &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded["name"] != "alice" || decoded["id"] != "u1" {
		t.Errorf("result = %v", decoded)
	}
}

func TestWSTransport_RPCError(t *testing.T) {
	srv := rpcEcho(t, func(req *rpcRequest) any { return nil })
	defer srv.Close()

	tr, err := NewWS(context.Background(), wsURL(srv), time.Minute, 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWS: %v", err)
	}
	defer tr.Close()

	_, err = tr.Perform(context.Background(), "missing", nil)

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error = %v, want RPCError", err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("code = %d", rpcErr.Code)
	}
}

func TestWSTransport_ConcurrentPerform(t *testing.T) {
	srv := rpcEcho(t, func(req *rpcRequest) any {
		var params map[string]any
		json.Unmarshal(req.Params, &params)
		return params["n"]
	})
	defer srv.Close()

	tr, err := NewWS(context.Background(), wsURL(srv), time.Minute, 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWS: %v", err)
	}
	defer tr.Close()

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			res, err := tr.Perform(context.Background(), "echo", Params{"n": float64(i)})
			if err == nil {
				var got float64
				if err2 := json.Unmarshal(res.Bytes(), &got); err2 != nil {
					err = err2
				} else if got != float64(i) {
					err = errors.New("response routed to the wrong caller")
				}
			}
			done <- err
		}(i)
	}
	for i := 0; i < 10; i++ {
		if err := <-done; err != nil {
			t.Errorf("call %d: %v", i, err)
		}
	}
}

func TestWSTransport_ContextCancel(t *testing.T) {
	// A responder that never answers.
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	tr, err := NewWS(context.Background(), wsURL(srv), time.Minute, 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWS: %v", err)
	}
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := tr.Perform(ctx, "hang", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}
