package main

import (
	"fmt"
	"path/filepath"

	"ingressd/internal/organize"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func resolveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve FILE...",
		Short: "Print where each file would be moved, without moving it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			quiet := logrus.New()
			quiet.SetOutput(cmd.ErrOrStderr())
			quiet.SetLevel(logrus.WarnLevel)

			router, err := organize.NewRouter(cfg, quiet)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var firstErr error
			for _, path := range args {
				dest, err := router.Destination(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if cfg.IsIgnored(filepath.Base(path)) {
					fmt.Fprintf(out, "%s (ignored)\n", path)
					continue
				}
				fmt.Fprintf(out, "%s -> %s\n", path, dest)
			}
			return firstErr
		},
	}
}
