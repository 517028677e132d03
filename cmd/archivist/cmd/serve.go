package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"archivist/internal/app/server"
	"archivist/internal/app/server/api"
)

var serveAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API для просмотра истории",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		address := cfg.Server.Address
		if serveAddress != "" {
			address = serveAddress
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mux := api.New(recorder, registry, log)
		return server.New(address, mux, log).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "адрес HTTP сервера (по умолчанию server.address)")
}
