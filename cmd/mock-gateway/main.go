// Command mock-gateway runs a deterministic OpenAI-compatible server that
// stands in for the Python inference gateway. It prints the same readiness
// line as the real gateway, so it can be used as gateway.command for local
// development and demos.
//
// Configuration:
//
//	G4F_PORT - Listen port (default: 1338), set by the supervisor
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("G4F_PORT")
	if port == "" {
		port = "1338"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", "127.0.0.1:"+port)
	if err != nil {
		slog.Error("mock gateway failed", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{Handler: newMux(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mock gateway failed", "error", err)
			os.Exit(1)
		}
	}()
	// The supervisor watches stdout for this line.
	fmt.Printf("INFO:     Uvicorn running on http://%s (Press CTRL+C to quit)\n", ln.Addr())

	<-ctx.Done()
	slog.Info("mock gateway shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx) //nolint:errcheck // exiting anyway
}
