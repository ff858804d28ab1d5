package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/PortGo/internal/debug"
	"github.com/cjeanneret/PortGo/internal/web"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Apply the pin table and serve the HTTP console",
	Long: `Apply the configured pin table, then expose the engine over HTTP:

  GET  /version, /pins, /registers
  POST /pins/{id}/direction   {"direction":"in"|"out"}
  POST /pins/{id}/mode        {"mode":N}
  POST /refresh
  GET  /diag/stream           server-sent log and diagnostic events

Examples:
  portgo serve
  portgo serve --listen :8980 --debug 2`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "",
		"listen address, overrides web.listen")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return serve(ctx)
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := cfg.Web.Listen
	if listenAddr != "" {
		addr = listenAddr
	}

	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	defer debug.SetOutput(os.Stdout)

	s, err := openSession(cfg, web.DiagSink(broadcaster))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.apply(cfg); err != nil {
		return err
	}

	srv := web.NewServer(addr, broadcaster, s.engine, s.dumper())
	return srv.Run(ctx)
}
