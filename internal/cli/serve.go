package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/topup/upsell/internal/config"
	"github.com/topup/upsell/internal/handlers"
)

// ServerDependencies holds all dependencies needed for the server
type ServerDependencies struct {
	ServerConfig config.ServerConfig
	Logger       *zap.Logger
	Sessions     *handlers.SessionCodec
	// Purger expires stored session values; nil disables the janitor
	Purger Purger

	UpsellHandler         http.Handler
	CheckoutDataHandler   http.Handler
	PaymentSessionHandler http.Handler
}

// RunServe starts the upsell web server
func RunServe(deps ServerDependencies) error {
	listener, server, err := StartServer(deps)
	if err != nil {
		return err
	}
	defer listener.Close()

	if deps.Purger != nil && deps.ServerConfig.SessionTTL > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		janitor := NewJanitor(deps.Purger, deps.ServerConfig.SessionTTL, deps.ServerConfig.PurgeInterval, loggerOf(deps))
		go janitor.Run(ctx)
		defer cancel()
	}

	return WaitForShutdown(server, nil, loggerOf(deps))
}

// NewRouter wires the middleware stack and routes
func NewRouter(deps ServerDependencies) http.Handler {
	log := loggerOf(deps)
	staticDir := deps.ServerConfig.StaticDir
	if staticDir == "" {
		staticDir = "static"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handlers.Health)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	r.Group(func(r chi.Router) {
		r.Use(handlers.Sessions(deps.Sessions, log))
		r.Mount("/upsell", deps.UpsellHandler)
		r.Method(http.MethodPut, "/api/session/checkoutData", deps.CheckoutDataHandler)
		r.Method(http.MethodGet, "/api/session/pixCheckout", deps.PaymentSessionHandler)
	})

	return r
}

// StartServer creates and starts the HTTP server, returning the listener and server
func StartServer(deps ServerDependencies) (net.Listener, *http.Server, error) {
	log := loggerOf(deps)

	addr := fmt.Sprintf(":%s", deps.ServerConfig.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create listener: %w", err)
	}

	server := &http.Server{
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
		}
	}()

	return listener, server, nil
}

// WaitForShutdown waits for a shutdown signal and gracefully shuts down the server
// If shutdown channel is nil, a new channel will be created and registered with signal.Notify
func WaitForShutdown(server *http.Server, shutdown chan os.Signal, logger *zap.Logger) error {
	return WaitForShutdownWithTimeout(server, shutdown, 30*time.Second, logger)
}

// WaitForShutdownWithTimeout allows specifying a custom shutdown timeout (primarily for testing)
func WaitForShutdownWithTimeout(server *http.Server, shutdown chan os.Signal, shutdownTimeout time.Duration, logger *zap.Logger) error {
	if shutdown == nil {
		shutdown = make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(shutdown)
	}

	sig := <-shutdown
	logger.Info("shutting down server", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		// Open countdown streams keep Shutdown waiting; force them closed
		logger.Warn("graceful shutdown timed out", zap.Error(err))
		if err := server.Close(); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

func loggerOf(deps ServerDependencies) *zap.Logger {
	if deps.Logger == nil {
		return zap.NewNop()
	}
	return deps.Logger
}
