package main

import (
	"fmt"

	"ingressd/internal/config"
	"ingressd/internal/errors"
	"ingressd/internal/log"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	debug      bool
	jsonLogs   bool
	dryRun     bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "ingressd",
		Short: "Sort files arriving in an ingress directory",
		Long: `ingressd watches a source directory and moves every file that appears in it
into a destination tree built from rule matches, project keywords, file type
and date.`,
		Version:      version,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", config.DefaultPath, "config file")
	flags.BoolVar(&g.debug, "debug", false, "log debug details")
	flags.BoolVar(&g.jsonLogs, "log-json", false, "write logs as JSON lines")
	flags.BoolVarP(&g.dryRun, "dry-run", "n", false, "log what would be moved without moving anything")

	rootCmd.AddCommand(runCmd(g))
	rootCmd.AddCommand(sweepCmd(g))
	rootCmd.AddCommand(resolveCmd(g))
	rootCmd.AddCommand(initConfigCmd(g))
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// loadConfig reads the config file, falling back to defaults when it is absent.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.dryRun {
		cfg.DryRun = true
	}
	return cfg, nil
}

// session is everything a routing command needs, torn down by close.
type session struct {
	cfg    *config.Config
	logger *log.Logger
	entry  logrus.FieldLogger
	lock   *flock.Flock
}

// openSession prepares the directories, the log sinks and the instance lock.
// Any failure here is fatal for the command.
func (g *globals) openSession() (*session, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	opts := []log.Option{log.WithFile(cfg.LogFile), log.WithDebug(g.debug)}
	if g.jsonLogs {
		opts = append(opts, log.WithJSON())
	}
	logger, err := log.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start logging")
	}
	s := &session{
		cfg:    cfg,
		logger: logger,
		entry:  logger.WithField("session", uuid.NewString()),
	}

	if cfg.Origin() == "defaults" {
		s.entry.WithField("config", g.configPath).Warn("No configuration file found, using defaults")
	} else {
		s.entry.WithField("config", cfg.Origin()).Info("Loaded configuration")
	}

	s.lock = flock.New(cfg.LockPath())
	locked, err := s.lock.TryLock()
	if err != nil {
		s.close()
		return nil, errors.FromOS("failed to acquire instance lock", cfg.LockPath(), err)
	}
	if !locked {
		s.close()
		return nil, fmt.Errorf("another ingressd instance is already running (lock %s)", cfg.LockPath())
	}
	return s, nil
}

func (s *session) close() {
	if s.lock != nil && s.lock.Locked() {
		if err := s.lock.Unlock(); err != nil {
			log.WithError(s.entry, err).Warn("Failed to release instance lock")
		}
	}
	s.logger.Close()
}
