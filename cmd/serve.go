package cmd

import (
	"os/signal"
	"syscall"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/httpapi"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local control API for browser front ends",
	Long: `Starts an HTTP server exposing the queue (enqueue, submit, results, history)
with live updates over server-sent events (/api/events) and websocket (/ws).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := appInstance.Start(ctx); err != nil {
			return err
		}

		if !log.IsLevelEnabled(log.DebugLevel) {
			gin.SetMode(gin.ReleaseMode)
		}

		addr := serveAddr
		if addr == "" {
			addr = appInstance.Config.Server.Addr
		}

		server := httpapi.NewServer(ctx, httpapi.Deps{
			Queue:   appInstance.Queue,
			Events:  appInstance.Events,
			History: appInstance.History,
			Health:  appInstance.Health,
			Stream:  appInstance,
			BaseURL: appInstance.Client.BaseURL(),
		}, appInstance.Config.Server.AllowedOrigins)
		return server.Run(addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr from config)")
	rootCmd.AddCommand(serveCmd)
}
