package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gallerysync/api/internal/repository"
)

func newServeCmd(rt *cli) *cobra.Command {
	var migrate, withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the queue worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			d, err := openDeps(ctx, rt, migrate)
			if err != nil {
				return err
			}
			defer d.Close()

			app, closeApp := newHTTPApp(rt, d)
			defer closeApp()

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				addr := ":" + rt.cfg.Server.Port
				rt.logger.Info().Str("addr", addr).Msg("server starting")
				return app.Listen(addr)
			})

			g.Go(func() error {
				<-ctx.Done()
				rt.logger.Info().Msg("shutting down server")
				return app.ShutdownWithTimeout(10 * time.Second)
			})

			if withWorker {
				srv, mux, err := newWorkerServer(ctx, rt, d)
				if err != nil {
					return err
				}
				g.Go(func() error {
					if err := srv.Start(mux); err != nil {
						return err
					}
					<-ctx.Done()
					srv.Shutdown()
					return nil
				})
			}

			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the database schema before starting")
	cmd.Flags().BoolVar(&withWorker, "worker", true, "run the queue worker in the same process")

	return cmd
}

func newWorkerCmd(rt *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the queue worker only",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			d, err := openDeps(ctx, rt, false)
			if err != nil {
				return err
			}
			defer d.Close()

			srv, mux, err := newWorkerServer(ctx, rt, d)
			if err != nil {
				return err
			}
			if err := srv.Start(mux); err != nil {
				return err
			}
			rt.logger.Info().Str("queue", rt.cfg.Queue.Name).Msg("worker started")

			<-ctx.Done()
			rt.logger.Info().Msg("shutting down worker")
			srv.Shutdown()
			return nil
		},
	}
}

func newMigrateCmd(rt *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema for the configured driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			db, err := repository.Open(ctx, rt.cfg.Database, rt.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return repository.Migrate(ctx, db)
		},
	}
}
