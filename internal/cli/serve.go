package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/birthmark-protocol/birthmark/internal/server"
	"github.com/birthmark-protocol/birthmark/pkg/logging"
	"github.com/birthmark-protocol/birthmark/pkg/metrics"
	"github.com/birthmark-protocol/birthmark/pkg/webhook"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP ledger server",
	Long: `Serve the configured backend over HTTP so other birthmark processes can
share it with --backend gateway --backend-opt endpoint=http://<addr>.

Routes:
  POST /v1/records                submit one record
  POST /v1/records/batch          submit records in order
  GET  /v1/records/{fingerprint}  look up a record (404 when absent)
  GET  /v1/stats                  diagnostic counts
  GET  /healthz                   liveness
  GET  /metrics                   Prometheus metrics

Every response carries an X-Request-ID header. Endpoints listed under
webhooks.hooks in the config file receive record.accepted, batch.accepted
and batch.partial events.

The server runs in the foreground until interrupted.

Examples:
  birthmark serve                          # memory ledger on 127.0.0.1:8645
  birthmark serve --addr :9000 --backend-opt network=studio`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := server.Options{Registry: metrics.Default()}
		if hooks := cfg.Webhooks.Hooks; len(hooks) > 0 {
			notifier := webhook.NewClient(webhook.Config{
				Hooks:      hooks,
				MaxRetries: cfg.Webhooks.MaxRetries,
				RetryDelay: cfg.Webhooks.RetryDelay,
				Registry:   opts.Registry,
			})
			defer notifier.Close()
			opts.Notifier = notifier
		}

		logging.Info("starting ledger server", map[string]any{
			"addr": addr, "backend": cfg.Backend.Name, "webhooks": len(cfg.Webhooks.Hooks),
		})
		return server.ListenAndServe(ctx, addr, server.New(b, opts))
	},
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
