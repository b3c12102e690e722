// Package server exposes the inspector over HTTP: health endpoints, build
// info and a read-only API over the stream registry and recent frames.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/quic-go/quic-go/http3"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/vp8inspector/internal/config"
	apperrors "github.com/zsiec/vp8inspector/internal/errors"
	"github.com/zsiec/vp8inspector/internal/health"
	"github.com/zsiec/vp8inspector/internal/ingestion/registry"
	"github.com/zsiec/vp8inspector/internal/inspector"
	"github.com/zsiec/vp8inspector/internal/logger"
)

// FrameSource looks up the recent inspection records of a live stream.
type FrameSource interface {
	RecentFrames(streamID string, n int) ([]inspector.Record, bool)
}

type Server struct {
	config       *config.ServerConfig
	router       *mux.Router
	httpServer   *http.Server
	http3Server  *http3.Server
	logger       *logrus.Logger
	registry     registry.Registry
	frames       FrameSource
	healthMgr    *health.Manager
	errorHandler *apperrors.ErrorHandler

	listener net.Listener
	wg       sync.WaitGroup
}

// New builds the server and its routes. frames may be nil, in which case
// the frames endpoint always answers 404.
func New(cfg *config.ServerConfig, log *logrus.Logger, reg registry.Registry, frames FrameSource, healthMgr *health.Manager) *Server {
	s := &Server{
		config:       cfg,
		router:       mux.NewRouter(),
		logger:       log,
		registry:     reg,
		frames:       frames,
		healthMgr:    healthMgr,
		errorHandler: apperrors.NewErrorHandler(log),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.errorHandler.Middleware)
	s.router.Use(s.metricsMiddleware)

	h := health.NewHandler(s.healthMgr)
	s.router.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", h.HandleReady).Methods(http.MethodGet)
	s.router.HandleFunc("/live", h.HandleLive).Methods(http.MethodGet)
	s.router.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/streams", s.handleListStreams).Methods(http.MethodGet)
	api.HandleFunc("/streams/{id}", s.handleGetStream).Methods(http.MethodGet)
	api.HandleFunc("/streams/{id}/frames", s.handleStreamFrames).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
}

// Router returns the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start binds the HTTP port and serves in the background. When TLS files
// are configured the same router is also served over HTTP/3.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(s.config.HTTPPort)))
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP port: %w", err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.WithField("addr", ln.Addr().String()).Info("HTTP server started")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server error")
		}
	}()

	if s.config.TLSEnabled() {
		if err := s.startHTTP3(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) startHTTP3() error {
	cert, err := tls.LoadX509KeyPair(s.config.TLSCertFile, s.config.TLSKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS certificates: %w", err)
	}

	s.http3Server = &http3.Server{
		Addr:    net.JoinHostPort("", strconv.Itoa(s.config.HTTP3Port)),
		Handler: s.router,
		TLSConfig: http3.ConfigureTLSConfig(&tls.Config{
			MinVersion:   tls.VersionTLS13,
			Certificates: []tls.Certificate{cert},
		}),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.WithField("port", s.config.HTTP3Port).Info("HTTP/3 server started")
		if err := s.http3Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP/3 server error")
		}
	}()
	return nil
}

// Addr is the bound HTTP address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.http3Server != nil {
		if err := s.http3Server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("http3 shutdown: %w", err))
		}
	}
	s.wg.Wait()
	s.logger.Info("HTTP server stopped")
	return errors.Join(errs...)
}
