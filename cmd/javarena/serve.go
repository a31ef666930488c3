package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/javarena/internal/history"
	"github.com/michaelbrown/javarena/internal/server"
	"github.com/michaelbrown/javarena/internal/session"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the javarena web server",
	Long: `Start the javarena HTTP server with REST API and WebSocket support.

The built frontend is served from server.static_dir. API endpoints are under /api.

Examples:
  javarena serve
  javarena serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec := history.NewRecorder(store, a.log)
	sessions := session.NewManager(a.builder, a.workspaces, session.Options{
		IdleTimeout: a.cfg.Sessions.IdleTimeout,
		MaxLifetime: a.cfg.Sessions.MaxLifetime,
		OnTerminate: rec.Session,
	}, a.log)

	deps := server.Deps{
		Runner:    a.runner,
		Sessions:  sessions,
		Store:     store,
		Toolchain: a.toolchain,
		Recorder:  rec,
		Logger:    a.log,
	}
	if rv := a.reviewer(); rv != nil {
		deps.Reviewer = rv
	}

	// Probe now so the first request doesn't pay for it.
	a.toolchain.Info()

	port := a.cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(a.cfg, deps)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-sigCh
		if err := srv.Shutdown(context.Background()); err != nil {
			a.log.Error("shutdown", "err", err)
		}
	}()

	if err := srv.Start(port); err != nil {
		return err
	}
	// Sessions record their history on the way out; keep the store open
	// until they have.
	<-stopped
	return nil
}
