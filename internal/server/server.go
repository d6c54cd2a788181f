// Package server wires the configured transports and their coordinators
// behind two HTTP listeners: the public call endpoint and the status
// endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"callfold/internal/coalescer"
	"callfold/internal/config"
	"callfold/internal/journal"
	"callfold/internal/transport"
)

// Server represents the main server
type Server struct {
	cfg          *config.Config
	jnl          *journal.Journal
	transports   map[string]transport.Transport
	coordinators map[string]*coalescer.Coordinator
	defaultName  string

	callServer   *http.Server
	statusServer *http.Server
	group        errgroup.Group

	logger    zerolog.Logger
	startedAt time.Time
}

// New creates a new Server: one transport and one coordinator per
// configured transport entry.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	jnl, err := journal.New(cfg.JournalSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal: %w", err)
	}

	s := &Server{
		cfg:          cfg,
		jnl:          jnl,
		transports:   make(map[string]transport.Transport),
		coordinators: make(map[string]*coalescer.Coordinator),
		logger:       logger,
	}

	for _, trCfg := range cfg.Transports {
		var tr transport.Transport
		switch trCfg.Kind {
		case config.KindWS:
			tr, err = transport.NewWS(context.Background(), trCfg.URL,
				trCfg.GetMessageTimeoutDuration(), trCfg.GetPingIntervalDuration(), logger)
			if err != nil {
				s.closeTransports()
				return nil, fmt.Errorf("transport '%s': %w", trCfg.Name, err)
			}
		default:
			tr = transport.NewHTTP(trCfg.URL, trCfg.Headers,
				cfg.GetTransportTimeoutDuration(), cfg.MaxBodySize, logger)
		}

		s.transports[trCfg.Name] = tr
		s.coordinators[trCfg.Name] = coalescer.New(trCfg.Name, tr,
			cfg.GetQuietWindowDuration(), jnl, logger)
		if s.defaultName == "" {
			s.defaultName = trCfg.Name
		}

		logger.Info().
			Str("transport", trCfg.Name).
			Str("kind", string(trCfg.Kind)).
			Str("url", trCfg.URL).
			Msg("transport registered")
	}

	return s, nil
}

// Start launches the call and status listeners. It returns immediately;
// listener failures surface from Stop.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	callMux := http.NewServeMux()
	callMux.HandleFunc("/call", s.handleCall)

	statusMux := http.NewServeMux()
	statusMux.HandleFunc("/status", s.handleStatus)
	statusMux.HandleFunc("/journal", s.handleJournal)

	s.callServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: callMux,
	}
	s.statusServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.StatusPort),
		Handler: statusMux,
	}

	s.group.Go(func() error {
		if err := s.callServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("call listener: %w", err)
		}
		return nil
	})
	s.group.Go(func() error {
		if err := s.statusServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status listener: %w", err)
		}
		return nil
	})

	s.logger.Info().
		Str("addr", s.callServer.Addr).
		Str("statusAddr", s.statusServer.Addr).
		Msg("server started")

	return nil
}

// Stop drains the listeners, flushes pending batches and closes the
// transports.
func (s *Server) Stop(ctx context.Context) error {
	var firstErr error

	for _, srv := range []*http.Server{s.callServer, s.statusServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, coord := range s.coordinators {
		coord.Close()
	}

	s.closeTransports()

	if err := s.group.Wait(); err != nil && firstErr == nil {
		firstErr = err
	}

	s.logger.Info().Msg("server stopped")
	return firstErr
}

func (s *Server) closeTransports() {
	for name, tr := range s.transports {
		if err := tr.Close(); err != nil {
			s.logger.Warn().Str("transport", name).Err(err).Msg("transport close failed")
		}
	}
}
