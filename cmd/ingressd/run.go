package main

import (
	"os"
	"os/signal"
	"syscall"

	"ingressd/internal/organize"
	"ingressd/internal/watch"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func runCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process waiting files, then watch the source directory until interrupted",
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
			if s.cfg.DryRun {
				s.entry.Info("Dry run: files will not be moved")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			loop := watch.NewLoop(s.cfg.SourceDir, router, s.entry)
			runErr := loop.Run(ctx)

			logStats(s.entry, router.Stats())
			return runErr
		},
	}
}

func logStats(logger logrus.FieldLogger, stats organize.Stats) {
	logger.WithFields(logrus.Fields{
		"moved":   stats.Moved,
		"ignored": stats.Ignored,
		"failed":  stats.Failed,
	}).Infof("Done: %d moved, %d ignored, %d failed", stats.Moved, stats.Ignored, stats.Failed)
}
