package commands

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"legalqa/internal/web"
)

var servePort int

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI",
		Long: `Start the web UI on the loopback address from the config (127.0.0.1:7860 by default).

The server refuses to listen on any other interface unless privacy.allow_remote
is set. Press Ctrl+C to stop; temporary upload files are removed on exit.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "port for the web UI (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(serve)(cmd, args)
}

func serve(cmd *cobra.Command, _ []string, a *app) error {
	addr := a.cfg.Addr()
	if servePort > 0 {
		addr = net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(servePort))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := web.New(a.engine, web.Options{
		Addr:        addr,
		MaxUploadMB: a.cfg.Server.MaxUploadMB,
		AllowRemote: a.cfg.Privacy.AllowRemote,
	}, a.log)
	if err := srv.Start(); err != nil {
		return err
	}
	cmd.Printf("Legal document assistant running at %s (model %s)\n", srv.URL(), a.title())
	cmd.Println("Press Ctrl+C to stop.")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
