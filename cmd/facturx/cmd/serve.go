package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rezonia/facturx/internal/config"
	"github.com/rezonia/facturx/internal/processor"
	"github.com/rezonia/facturx/internal/sender"
	"github.com/rezonia/facturx/internal/server"
	"github.com/rezonia/facturx/internal/storage"
)

var (
	serverAddr  string
	serverDebug bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server.

The API provides endpoints for:
  - POST   /invoices            - Create a Factur-X PDF from a JSON draft
  - POST   /invoices/upload     - Ingest a Factur-X PDF or CII XML file
  - GET    /invoices            - List stored invoices
  - GET    /invoices/:id        - Download the PDF (or the XML with Accept: application/xml)
  - DELETE /invoices/:id        - Delete an invoice
  - POST   /invoices/:id/send   - Forward an invoice to the remote API
  - GET    /health              - Health check

Examples:
  # Start server on the configured address
  facturx serve

  # Start on a custom port in debug mode
  facturx serve --address :8080 --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (env: HTTP_ADDRESS)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
}

// buildService wires the storage backend and the optional remote sender
func buildService(ctx context.Context, cfg *config.Config) (*processor.Service, storage.Gateway, error) {
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	opts := []processor.Option{processor.WithPlainFallback(cfg.FacturX.AllowPlainFallback)}
	if cfg.Remote.Enabled() {
		opts = append(opts, processor.WithSender(sender.New(sender.Config{
			APIURL:       cfg.Remote.APIURL,
			BaseURL:      cfg.App.BaseURL,
			RoutingKey:   cfg.Remote.RoutingKey,
			FolderNumber: cfg.Remote.FolderNumber,
			TokenURL:     cfg.Remote.Keycloak.TokenURL(),
			ClientID:     cfg.Remote.Keycloak.ClientID,
			ClientSecret: cfg.Remote.Keycloak.ClientSecret,
		})))
	} else {
		log.Warn().Msg("REMOTE_API_URL not set, sending is disabled")
	}
	return processor.NewService(store, opts...), store, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, store, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	addr := cfg.HTTP.Address
	if serverAddr != "" {
		addr = serverAddr
	}
	srv := server.NewServer(&server.Config{
		Address:      addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		Debug:        serverDebug,
	}, svc)

	log.Info().
		Str("env", cfg.App.Env).
		Str("storage", cfg.Storage.Type).
		Bool("plain_fallback", cfg.FacturX.AllowPlainFallback).
		Msg("starting server")
	return srv.Run(ctx)
}
