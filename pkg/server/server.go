package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/relay"
	"mercator-hq/ganymede/pkg/resolve"
	gtls "mercator-hq/ganymede/pkg/security/tls"
	"mercator-hq/ganymede/pkg/telemetry/health"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

// Server is the gateway HTTP server. It owns the route table and the
// listener lifecycle; resolution and relaying are delegated to the
// resolver and engine it is built with.
type Server struct {
	cfg          *config.Config
	resolver     *resolve.Resolver
	engine       *relay.Engine
	metrics      *metrics.Collector
	checker      *health.Checker
	audit        *audit.Recorder
	logger       *slog.Logger
	maxBodyBytes int64

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	running      bool
}

// Options bundles the collaborators a Server needs. Audit is optional;
// everything else must be set.
type Options struct {
	Config   *config.Config
	Resolver *resolve.Resolver
	Engine   *relay.Engine
	Metrics  *metrics.Collector
	Checker  *health.Checker
	Audit    *audit.Recorder
	Logger   *slog.Logger
}

// New creates a server from opts.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Engine != nil && opts.Metrics != nil {
		opts.Engine.SetAttemptObserver(opts.Metrics.RecordAttempt)
	}
	return &Server{
		cfg:          opts.Config,
		resolver:     opts.Resolver,
		engine:       opts.Engine,
		metrics:      opts.Metrics,
		checker:      opts.Checker,
		audit:        opts.Audit,
		logger:       logger,
		maxBodyBytes: opts.Config.Server.MaxBodyBytes,
	}
}

// Start runs the server and blocks until ctx is cancelled, a shutdown
// signal arrives, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	serverCfg := s.cfg.Server
	s.httpServer = &http.Server{
		Addr:           serverCfg.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    serverCfg.ReadTimeout,
		WriteTimeout:   serverCfg.WriteTimeout,
		IdleTimeout:    serverCfg.IdleTimeout,
		MaxHeaderBytes: serverCfg.MaxHeaderBytes,
	}

	tlsEnabled := s.cfg.Security.TLS.Enabled
	if tlsEnabled {
		tlsConfig, err := gtls.NewServerConfig(ctx, s.cfg.Security.TLS, s.logger)
		if err != nil {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return fmt.Errorf("tls setup failed: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway server",
			"address", serverCfg.ListenAddress,
			"tls_enabled", tlsEnabled,
		)

		var err error
		if tlsEnabled {
			// Certificates come from the reloader via TLSConfig.
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown stops the server, letting in-flight requests finish within the
// configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown",
			"timeout", s.cfg.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		s.logger.Info("gateway server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler builds the route table with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /openai/deployments/{deployment}/chat/completions",
		s.invokeHandler(OperationChat))
	mux.HandleFunc("POST /openai/deployments/{deployment}/embeddings",
		s.invokeHandler(OperationEmbeddings))

	mux.HandleFunc("/health", s.checker.LivenessHandler())
	mux.HandleFunc("/ready", s.checker.ReadinessHandler())

	if s.cfg.Telemetry.Metrics.Enabled {
		mux.Handle(s.cfg.Telemetry.Metrics.Path, s.metrics.Handler())
	}

	var handler http.Handler = mux
	if s.cfg.Server.CORS.Enabled {
		handler = corsMiddleware(corsSettings{
			AllowedOrigins: s.cfg.Server.CORS.AllowedOrigins,
			AllowedMethods: s.cfg.Server.CORS.AllowedMethods,
			AllowedHeaders: s.cfg.Server.CORS.AllowedHeaders,
			MaxAge:         s.cfg.Server.CORS.MaxAge,
		})(handler)
	}
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(s.logger)(handler)

	return handler
}
