package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fableforge/avatard/internal/rest"
	"github.com/fableforge/avatard/internal/setup"
	"go.uber.org/zap"
)

// Server timeouts. The write timeout leaves room for a request that waits on
// a queued render plus its retries.
const (
	ReadTimeout     = 5 * time.Second
	WriteTimeout    = 90 * time.Second
	ShutdownTimeout = 30 * time.Second
)

func main() {
	// Root context cancelled on shutdown; workers and sweepers hang off it
	runCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	// Initialize application with required dependencies
	app, err := setup.InitializeApp(runCtx)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup(context.Background())

	// Start the render workers
	app.Coordinator.Start(runCtx)

	// Create server
	handler, err := rest.NewServer(
		app.DB, app.Results, app.Loader, app.Coordinator, app.Store, app.Logger,
	)
	if err != nil {
		app.Logger.Fatal("Failed to create server", zap.Error(err))
	}

	// Get server address from config
	addr := fmt.Sprintf("%s:%d", app.Config.Server.Host, app.Config.Server.Port)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		certFile := app.Config.Server.CertFile
		keyFile := app.Config.Server.KeyFile

		var err error

		if certFile != "" && keyFile != "" {
			log.Printf("Avatar server started on %s (TLS)", addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Printf("Avatar server started on %s", addr)
			err = srv.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	app.Logger.Info("Shutting down avatar server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown, then stop the render workers
	if err := srv.Shutdown(ctx); err != nil {
		app.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	stopWorkers()
	app.Coordinator.Wait()
	app.Logger.Info("Server exited")
}
