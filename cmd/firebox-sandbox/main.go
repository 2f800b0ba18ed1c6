// Command firebox-sandbox serves an in-memory realtime database on a local
// port so applications can be developed and tested without a cloud project.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Skycoder42/firebox/internal/devseed"
	"github.com/Skycoder42/firebox/internal/logging"
	"github.com/Skycoder42/firebox/pkg/rtdb"
	"github.com/Skycoder42/firebox/pkg/rtdb/mock"
)

type sandboxFlags struct {
	addr      string
	seed      string
	authToken string
	latency   time.Duration
	fail      string
	keepAlive time.Duration
	logLevel  string
	logFormat string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &sandboxFlags{}
	cmd := &cobra.Command{
		Use:   "firebox-sandbox",
		Short: "Serve an in-memory realtime database over the REST and streaming protocol",
		Example: `  # Serve an empty database on the default port
  firebox-sandbox

  # Seed data from a file and require a token
  firebox-sandbox --seed seed.yaml --auth-token dev-token

  # Slow, flaky backend
  firebox-sandbox --latency 200ms --fail rate=0.1,code=503`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSandbox(ctx, f, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.addr, "addr", ":8787", "Listen address")
	flags.StringVar(&f.seed, "seed", "", "Path to a YAML or JSON file with the initial data")
	flags.StringVar(&f.authToken, "auth-token", "", "Token every request must carry in the auth parameter")
	flags.DurationVar(&f.latency, "latency", 0, "Artificial latency to inject per request")
	flags.StringVar(&f.fail, "fail", "", "Failure injection (rate=<float>,code=<httpStatus>)")
	flags.DurationVar(&f.keepAlive, "keepalive", mock.DefaultKeepAlive, "Interval between keep-alive events on streams (0 disables)")
	flags.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&f.logFormat, "log-format", "text", "Log format (text, json)")
	return cmd
}

func runSandbox(ctx context.Context, f *sandboxFlags, stdout, stderr io.Writer) error {
	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(f.logLevel),
		Format: logging.ParseFormat(f.logFormat),
		Output: stderr,
	})

	failCfg, err := parseFailConfig(f.fail)
	if err != nil {
		return fmt.Errorf("parse fail flag: %w", err)
	}

	db := mock.New(
		mock.WithAuthToken(f.authToken),
		mock.WithKeepAlive(f.keepAlive),
		mock.WithLogger(log.With("component", "mock")),
	)
	if f.seed != "" {
		tree, err := devseed.LoadTree(f.seed)
		if err != nil {
			return err
		}
		if err := db.Seed(tree); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
		log.Info("seed applied", "path", f.seed)
	}

	listener, err := net.Listen("tcp", f.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", f.addr, err)
	}
	server := &http.Server{
		Handler:           withMiddleware(f.latency, failCfg, log, db.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("firebox-sandbox listening", "addr", listener.Addr().String())
	printExports(stdout, listener.Addr(), f.authToken)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	// Streams never finish on their own; end them before draining.
	db.CancelStreams("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func printExports(w io.Writer, addr net.Addr, authToken string) {
	host := addr.String()
	if tcp, ok := addr.(*net.TCPAddr); ok && (tcp.IP == nil || tcp.IP.IsUnspecified()) {
		host = fmt.Sprintf("localhost:%d", tcp.Port)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "export %s=http://%s\n", rtdb.EnvEndpoint, host)
	if authToken != "" {
		fmt.Fprintf(w, "export %s=%s\n", rtdb.EnvAuthToken, authToken)
	}
	fmt.Fprintln(w)
}

// requestLogger logs one line per request once the handler returns.
func requestLogger(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"stream", strings.Contains(r.Header.Get(rtdb.HeaderAccept), rtdb.ContentTypeEventStream),
			"duration", time.Since(start),
		)
	})
}
