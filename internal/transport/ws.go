package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSTransport performs JSON-RPC calls over a single WebSocket connection.
// The target of a call is the RPC method name; params are sent as the
// request's params object. Requests and responses are correlated through
// a pending map keyed by request id.
type WSTransport struct {
	url            string
	messageTimeout time.Duration
	pingInterval   time.Duration
	logger         zerolog.Logger

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex

	pending   map[int64]chan *rpcResponse
	pendingMu sync.Mutex
	reqID     int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWS dials url and starts the reader and ping loops. The returned
// transport is ready for concurrent Perform calls.
func NewWS(ctx context.Context, url string, messageTimeout, pingInterval time.Duration, logger zerolog.Logger) (*WSTransport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t := &WSTransport{
		url:            url,
		messageTimeout: messageTimeout,
		pingInterval:   pingInterval,
		logger:         logger.With().Str("component", "transport-ws").Str("url", url).Logger(),
		conn:           conn,
		pending:        make(map[int64]chan *rpcResponse),
		ctx:            runCtx,
		cancel:         cancel,
	}

	t.setPongHandler(conn)
	t.logger.Info().Msg("WebSocket connected")

	t.wg.Add(1)
	go t.readLoop()
	if pingInterval > 0 {
		t.wg.Add(1)
		go t.pingLoop()
	}

	return t, nil
}

func (t *WSTransport) setPongHandler(conn *websocket.Conn) {
	readTimeout := t.messageTimeout
	if readTimeout == 0 {
		readTimeout = 60 * time.Second
	}
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
}

// Perform sends one JSON-RPC request and waits for its response. A JSON-RPC
// error object is returned as an *RPCError; the raw result payload becomes
// the Result body otherwise.
func (t *WSTransport) Perform(ctx context.Context, target string, params Params) (*Result, error) {
	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("WebSocket not connected")
	}

	var reqParams any
	if len(params) > 0 {
		reqParams = map[string]any(params)
	}

	reqID := atomic.AddInt64(&t.reqID, 1)
	req, err := newRPCRequest(reqID, target, reqParams)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respChan := make(chan *rpcResponse, 1)
	t.pendingMu.Lock()
	t.pending[reqID] = respChan
	t.pendingMu.Unlock()

	t.writeMu.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, raw)
	t.writeMu.Unlock()
	if writeErr != nil {
		t.dropPending(reqID)
		return nil, fmt.Errorf("send request: %w", writeErr)
	}

	select {
	case resp := <-respChan:
		if resp == nil {
			return nil, fmt.Errorf("connection closed")
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return NewResult(0, nil, []byte(resp.Result)), nil
	case <-ctx.Done():
		t.dropPending(reqID)
		return nil, ctx.Err()
	case <-t.ctx.Done():
		t.dropPending(reqID)
		return nil, fmt.Errorf("transport closed")
	}
}

func (t *WSTransport) dropPending(reqID int64) {
	t.pendingMu.Lock()
	delete(t.pending, reqID)
	t.pendingMu.Unlock()
}

// readLoop routes inbound frames to their pending waiters.
func (t *WSTransport) readLoop() {
	defer t.wg.Done()

	for {
		t.connMu.RLock()
		conn := t.conn
		t.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if t.ctx.Err() == nil {
				t.logger.Warn().Err(err).Msg("read failed, closing pending requests")
			}
			t.failPending()
			return
		}

		readTimeout := t.messageTimeout
		if readTimeout == 0 {
			readTimeout = 60 * time.Second
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var resp rpcResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			t.logger.Debug().Err(err).Msg("dropping unparseable frame")
			continue
		}

		t.pendingMu.Lock()
		ch, ok := t.pending[resp.ID]
		if ok {
			delete(t.pending, resp.ID)
		}
		t.pendingMu.Unlock()

		if ok {
			ch <- &resp
		} else {
			t.logger.Debug().Int64("id", resp.ID).Msg("response with no pending request")
		}
	}
}

// failPending closes every waiting response channel so blocked Perform
// calls return instead of hanging on a dead connection.
func (t *WSTransport) failPending() {
	t.pendingMu.Lock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()
}

func (t *WSTransport) pingLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.connMu.RLock()
			conn := t.conn
			t.connMu.RUnlock()
			if conn == nil {
				return
			}
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug().Err(err).Msg("ping write failed")
				return
			}
		}
	}
}

// Close shuts the connection down and unblocks in-flight Perform calls.
func (t *WSTransport) Close() error {
	t.cancel()

	t.connMu.Lock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.connMu.Unlock()

	t.failPending()
	t.wg.Wait()
	t.logger.Info().Msg("WebSocket disconnected")
	return nil
}
