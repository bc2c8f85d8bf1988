package main

import (
	"os"
	"os/signal"
	"syscall"

	"ingressd/internal/organize"
	"ingressd/internal/watch"

	"github.com/spf13/cobra"
)

func sweepCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Process the files currently in the source directory and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.openSession()
			if err != nil {
				return err
			}
			defer s.close()

			router, err := organize.NewRouter(s.cfg, s.entry)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = watch.NewBootstrapper(router, s.entry).ProcessExistingContext(ctx, s.cfg.SourceDir)
			logStats(s.entry, router.Stats())
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
