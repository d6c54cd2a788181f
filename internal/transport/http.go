package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Recognized parameter keys for HTTP calls.
const (
	paramMethod  = "method"
	paramHeaders = "headers"
	paramBody    = "body"
)

// HTTPTransport performs plain HTTP calls against a base URL. Responses are
// read to completion into a Result so the outcome can be fanned out.
type HTTPTransport struct {
	baseURL     string
	headers     map[string]string
	client      *http.Client
	maxBodySize int64
	logger      zerolog.Logger
}

// NewHTTP creates an HTTP transport. baseURL is prefixed to every target
// path; headers are applied to every request. maxBodySize of 0 means no
// response size limit.
func NewHTTP(baseURL string, headers map[string]string, timeout time.Duration, maxBodySize int64, logger zerolog.Logger) *HTTPTransport {
	return &HTTPTransport{
		baseURL:     strings.TrimRight(baseURL, "/"),
		headers:     headers,
		client:      &http.Client{Timeout: timeout},
		maxBodySize: maxBodySize,
		logger:      logger.With().Str("component", "transport-http").Logger(),
	}
}

// Perform issues one HTTP request. params may carry "method" (default GET),
// "headers" (map of string values) and "body" (string, or any JSON-encodable
// value). A non-2xx status is still a Result: the call itself succeeded.
func (t *HTTPTransport) Perform(ctx context.Context, target string, params Params) (*Result, error) {
	method := http.MethodGet
	if m, ok := params[paramMethod].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	var body io.Reader
	contentType := ""
	if raw, ok := params[paramBody]; ok && raw != nil {
		switch b := raw.(type) {
		case string:
			body = strings.NewReader(b)
		default:
			encoded, err := json.Marshal(b)
			if err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
			body = strings.NewReader(string(encoded))
			contentType = "application/json"
		}
	}

	url := target
	if !strings.Contains(target, "://") {
		url = t.baseURL + "/" + strings.TrimLeft(target, "/")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if h, ok := params[paramHeaders].(map[string]any); ok {
		for k, v := range h {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload []byte
	if t.maxBodySize > 0 {
		payload, err = io.ReadAll(io.LimitReader(resp.Body, t.maxBodySize+1))
		if err == nil && int64(len(payload)) > t.maxBodySize {
			err = fmt.Errorf("response body exceeds %d bytes", t.maxBodySize)
		}
	} else {
		payload, err = io.ReadAll(resp.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	t.logger.Debug().
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Int("bytes", len(payload)).
		Dur("elapsed", time.Since(start)).
		Msg("request completed")

	return NewResult(resp.StatusCode, resp.Header.Clone(), payload), nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
