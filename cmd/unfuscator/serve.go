package main

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"unfuscator/internal/config"
	"unfuscator/internal/dotfuscator"
	"unfuscator/internal/mapping"
	"unfuscator/internal/server"
	"unfuscator/internal/unfuscate"
	"unfuscator/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var skipInitial bool
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Load map files from a directory as they appear",
		Long: heredoc.Doc(`
			Watch a directory and load every map file written to it.

			Maps already in the directory are loaded first. Files matching
			the directory's .unfuscatorignore are skipped; the ignore file is
			re-read when it changes. Runs until interrupted.`),
		Example: heredoc.Doc(`
			❯ unfuscator watch --db ./maps.db ./drop`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			w, err := a.newWatcher(store, args[0], !skipInitial)
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipInitial, "skip-initial", false, "do not load the maps already in the directory")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var watchDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trace resolution HTTP API",
		Long: heredoc.Doc(`
			Serve the HTTP API:

			  POST /v1/unfuscate  resolve a trace
			  GET  /v1/versions   versions in the store
			  GET  /v1/stats      store statistics
			  GET  /v1/watch      watcher status (with --watch)
			  GET  /healthz       liveness
			  GET  /metrics       Prometheus metrics`),
		Example: heredoc.Doc(`
			# Serve and keep loading maps dropped into ./drop
			❯ unfuscator serve --addr :8080 --watch ./drop

			# Resolve a trace
			❯ curl -s localhost:8080/v1/unfuscate -d '{"trace":"at a.b(Int32 id)","target_version":"1.2.3.4"}'`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			u := unfuscate.New(store,
				unfuscate.WithLogger(a.logger),
				unfuscate.WithConcurrency(a.cfg.Trace.Concurrency))
			opts := []server.Option{server.WithLogger(a.logger)}

			var w *watch.Watcher
			if watchDir != "" {
				if w, err = a.newWatcher(store, watchDir, true); err != nil {
					return err
				}
				opts = append(opts, server.WithWatcher(w))
			}
			srv := server.New(store, u, opts...)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return srv.Run(ctx, a.cfg.Server.Addr)
			})
			if w != nil {
				g.Go(func() error {
					return w.Run(ctx)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().String("addr", config.DefaultServerAddr, "listen address")
	cmd.Flags().StringVar(&watchDir, "watch", "", "also load maps written to this directory")
	a.v.BindPFlag(config.KeyServerAddr, cmd.Flags().Lookup("addr"))
	return cmd
}

func (a *app) newWatcher(store mapping.Store, dir string, initial bool) (*watch.Watcher, error) {
	return watch.New(watch.Config{
		Dir:         dir,
		Debounce:    a.cfg.Watch.Debounce(),
		InitialLoad: initial,
	}, dotfuscator.NewLoader(store, a.logger), a.logger)
}
