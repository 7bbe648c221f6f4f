package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/fsindex/internal/httpapi"
	"github.com/dshills/fsindex/internal/scheduler"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Synchronize repeatedly, sleeping wait_time between runs",
	Long: `Run synchronizations forever. After each run the daemon sleeps for the
configured wait_time (e.g. 30m, 12h, 1d). A failed run stops the daemon with
exit code 1 so the service manager can restart it.

When http.listen is set, /healthz, /status, /search and /metrics are served
on that address.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		sched := scheduler.New(a.indexer, a.cfg.Interval(), a.logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return sched.Run(gctx)
		})

		if addr := a.cfg.HTTP.Listen; addr != "" {
			srv := httpapi.New(httpapi.Options{
				Engine:   a.indexer,
				Schedule: sched,
				Searcher: a.searcher,
				Backend:  a.backend,
				Logger:   a.logger,

				SearchRate: a.cfg.HTTP.SearchRate,
			})
			g.Go(func() error {
				return srv.ListenAndServe(gctx, addr)
			})
		}

		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
