// Command catalog-stub serves a fake catalog session API for local connector
// development.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bit-broker/examples/internal/catalogstub"
)

func main() {
	addr := flag.String("addr", ":8001", "listen address")
	token := flag.String("token", os.Getenv("AUTHORIZE_KEY"), "required x-bbk-auth-token (empty accepts any)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	stub := catalogstub.New(catalogstub.WithToken(*token), catalogstub.WithLogger(logger))

	server := &http.Server{
		Addr:              *addr,
		Handler:           stub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("error shutting down server", "error", err)
		}
	}()

	logger.Info("catalog stub listening", "addr", *addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
