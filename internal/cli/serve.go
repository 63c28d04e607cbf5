package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vdb/internal/handler"
	"vdb/internal/hub"
	"vdb/internal/telemetry"
)

const FlagAddr = "addr"

func newServeCommand(st *state) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve repository content and the schema catalog over HTTP",
		Long: `serve starts the HTTP API. Content is available under /content and /type,
the catalog under /api, and change notifications as server-sent events
under /events. Schema files are re-registered on change when schemas.watch
is enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				st.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", st.cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", st.cfg.Server.Addr, err)
			}
			return serve(ctx, st, ln)
		},
	}
	cmd.Flags().StringVar(&addr, FlagAddr, "", "listen address (overrides server.addr)")
	return cmd
}

// serve runs the server on ln until ctx is done
func serve(ctx context.Context, st *state, ln net.Listener) error {
	logger := st.logger

	shutdownTracing, err := telemetry.Setup(ctx, st.cfg.Telemetry)
	if err != nil {
		ln.Close()
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	app, err := st.open(ctx)
	if err != nil {
		ln.Close()
		return err
	}
	defer app.Close()

	events := hub.New(hub.WithLogger(logger))
	mux := http.NewServeMux()
	app.Routes(mux)
	mux.Handle("GET /events", events)

	srv := &http.Server{
		Handler:           handler.Chain(mux, handler.Recover, handler.CORS, handler.RequestLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return events.Run(gctx)
	})
	g.Go(func() error {
		return app.Events.Forward(gctx, events)
	})
	g.Go(func() error {
		return app.Watch(gctx)
	})
	g.Go(func() error {
		logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := st.cfg.Server.ShutdownTimeout.Duration()
		logger.Info("shutting down", "timeout", timeout)
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
