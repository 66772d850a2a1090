package main

import (
	"github.com/adverant/nexus/pharmascan/internal/api"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Starts the PharmaScan HTTP API:

  POST   /api/scan                 multipart upload, form key "file"
  GET    /api/history[/:id]        stored scans, newest first
  DELETE /api/history/:id
  GET    /api/lookup/search?q=     lenient dictionary search
  GET    /api/lookup/drug/:slug
  GET    /api/lookup/categories    ATC main groups (?atc= lists members)
  GET    /healthcheck`,
		Example: `  # Serve on the configured HTTP_ADDR (default :10000)
  pharmascan serve

  # Serve on another address with a local dictionary bundle
  DICTIONARY_FILE=./dictionary.bundle.json pharmascan serve --addr :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer a.Close()

			a.warmDictionary(ctx)

			server := api.NewServer(&api.ServerConfig{
				Addr:           cfg.HTTPAddr,
				MaxUploadBytes: cfg.MaxUploadBytes,
				Processor:      a.processor,
				Repository:     a.repository,
				Dictionary:     a.dictionary,
				Logger:         logger,
				Release:        cfg.AppEnv == "production",
			})
			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (overrides HTTP_ADDR)")

	return cmd
}
