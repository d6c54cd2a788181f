package config

import "time"

// Kind defines the transport kind
type Kind string

const (
	KindHTTP Kind = "http"
	KindWS   Kind = "ws"
)

// Config represents the main configuration structure
type Config struct {
	Host             string            `json:"host"`
	Port             int               `json:"port"`
	StatusPort       int               `json:"statusPort"`
	LogLevel         string            `json:"logLevel"`
	QuietWindow      int               `json:"quietWindow"`      // ms - debounce window; dispatch fires after this long with no new joiner
	MaxBodySize      int64             `json:"maxBodySize"`      // bytes - limit on inbound request bodies, 0 means no limit
	TransportTimeout int               `json:"transportTimeout"` // ms - outbound call timeout
	JournalSize      int               `json:"journalSize"`      // number of retired-batch records retained
	Transports       []TransportConfig `json:"transports"`
}

// TransportConfig represents a single named transport
type TransportConfig struct {
	Name           string            `json:"name"`
	Kind           Kind              `json:"kind"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	MessageTimeout int               `json:"messageTimeout"` // ms - WS only, timeout for receiving messages
	PingInterval   int               `json:"pingInterval"`   // ms - WS only, keepalive ping interval
}

// Default values
const (
	DefaultHost             = "localhost"
	DefaultPort             = 8080
	DefaultStatusPort       = 8081
	DefaultLogLevel         = "info"
	DefaultQuietWindow      = 500 // ms
	DefaultMaxBodySize      = int64(0)
	DefaultTransportTimeout = 30000 // ms
	DefaultJournalSize      = 1024
	DefaultMessageTimeout   = 60000 // ms
	DefaultPingInterval     = 30000 // ms
)

// GetQuietWindowDuration returns the debounce window as time.Duration
func (c *Config) GetQuietWindowDuration() time.Duration {
	return time.Duration(c.QuietWindow) * time.Millisecond
}

// GetTransportTimeoutDuration returns the outbound call timeout as time.Duration
func (c *Config) GetTransportTimeoutDuration() time.Duration {
	return time.Duration(c.TransportTimeout) * time.Millisecond
}

// GetMessageTimeoutDuration returns the WS message timeout as time.Duration
func (t *TransportConfig) GetMessageTimeoutDuration() time.Duration {
	return time.Duration(t.MessageTimeout) * time.Millisecond
}

// GetPingIntervalDuration returns the WS ping interval as time.Duration
func (t *TransportConfig) GetPingIntervalDuration() time.Duration {
	return time.Duration(t.PingInterval) * time.Millisecond
}
