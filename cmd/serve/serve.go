// Package serve implements the HTTP server command.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tattler-mx/tattler-go/internal/api"
	"github.com/tattler-mx/tattler-go/internal/config"
	"github.com/tattler-mx/tattler-go/internal/datastore"
)

// Command creates the serve command, which runs the REST API server until
// interrupted.
func Command(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(ctx.Settings)
		},
	}

	cmd.Flags().StringVar(&ctx.Settings.HTTP.Host, "host", ctx.Settings.HTTP.Host, "Listen address")
	cmd.Flags().StringVar(&ctx.Settings.HTTP.Port, "port", ctx.Settings.HTTP.Port, "Listen port")

	return cmd
}

func runServer(settings *config.Settings) error {
	store, err := datastore.NewMongo(settings.Mongo.URI, settings.Mongo.Database, settings.Mongo.Timeout, slog.Default())
	if err != nil {
		return fmt.Errorf("error creating datastore: %w", err)
	}

	bg := context.Background()
	if err := store.EnsureIndexes(bg); err != nil {
		return fmt.Errorf("error ensuring indexes: %w", err)
	}

	controller := api.New(settings, store)

	notifyCtx, stop := signal.NotifyContext(bg, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		addr := net.JoinHostPort(settings.HTTP.Host, settings.HTTP.Port)
		if err := controller.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-notifyCtx.Done():
	}

	slog.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()
	return controller.Shutdown(shutdownCtx)
}
