package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aretw0/citylink"
	intobs "github.com/aretw0/citylink/internal/observability"
	httpAdapter "github.com/aretw0/citylink/pkg/adapters/http"
	"github.com/aretw0/citylink/pkg/adapters/mcp"
	"github.com/aretw0/citylink/pkg/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// NewHTTPServer builds the JSON API for app. Profile saves follow every change.
func NewHTTPServer(app *App) *httpAdapter.Server {
	intobs.RegisterMetrics()
	return httpAdapter.NewServer(app.Client,
		httpAdapter.WithLogger(app.Logger),
		httpAdapter.WithVersion(citylink.Version),
		httpAdapter.WithRequestObserver(intobs.RecordHTTPRequest),
		httpAdapter.WithMetricsHandler(promhttp.Handler()),
		httpAdapter.WithOnChange(app.persistQuietly),
	)
}

// RunServe serves the JSON API on addr until ctx ends. Peer changes are pushed
// to /events subscribers as they arrive.
func RunServe(ctx context.Context, app *App, addr string, out io.Writer) error {
	api := NewHTTPServer(app)

	n := session.NewNotifier(app.Store.Channel(), app.Store.Prefix(), app.Logger)
	detach := app.Client.Attach(n)
	defer detach()
	removePublish := n.Register(func(context.Context, string) {
		app.persistQuietly()
		api.Publish()
	})
	defer removePublish()
	if err := n.Start(ctx); err != nil {
		return err
	}
	defer n.Stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		printSystemMessage(out, "Serving citylink API on %s", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown did not complete in %v: %w", shutdownTimeout, err)
		}
		printSystemMessage(out, "citylink API stopped gracefully")
		return nil
	}
}

// RunMCP serves the MCP tools over transport. SSE listens on addr until ctx ends.
func RunMCP(ctx context.Context, app *App, transport, addr, baseURL string) error {
	srv := mcp.NewServer(app.Client, citylink.Version, mcp.WithOnChange(app.persistQuietly))

	switch transport {
	case TransportStdio:
		app.Logger.Info("Starting citylink MCP Server (Stdio)")
		return srv.ServeStdio()
	case TransportSSE:
		app.Logger.Info("Starting citylink MCP Server (SSE)", "addr", addr)
		err := srv.ServeSSE(ctx, addr, baseURL)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown transport %q, supported: %s, %s", transport, TransportStdio, TransportSSE)
	}
}
