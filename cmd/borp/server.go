package main

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-borp/internal/log"
	"github.com/teslashibe/go-borp/pkg/server"
)

var serverAddr string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the reference collaborator server",
	Long: `Run the collaborator server: comment inbox, response and animation
fan-out over /ws, audio uploads under /uploads and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := cfg.Server
		if serverAddr != "" {
			sc.Addr = serverAddr
		}
		srv, err := server.New(
			server.WithAddr(sc.Addr),
			server.WithAPIKey(sc.APIKey),
			server.WithUploadDir(sc.UploadDir),
			server.WithPublicURL(sc.PublicURL),
			server.WithUnreadWindow(sc.UnreadWindow),
			server.WithAllowOrigins(sc.AllowOrigins),
			server.WithLogger(log.Component("server")),
		)
		if err != nil {
			return err
		}
		return srv.Start(cmd.Context())
	},
}

func init() {
	serverCmd.Flags().StringVar(&serverAddr, "addr", "", "listen address (overrides server.addr)")
}
