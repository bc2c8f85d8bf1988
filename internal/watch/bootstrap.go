package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"ingressd/internal/errors"
	"ingressd/internal/log"
	"ingressd/pkg/types"

	"github.com/sirupsen/logrus"
)

// Bootstrapper feeds files that were already waiting in the source directory
// to a consumer, one at a time, in lexicographic order.
type Bootstrapper struct {
	consumer types.FileConsumer
	logger   logrus.FieldLogger
}

// NewBootstrapper creates a Bootstrapper.
func NewBootstrapper(consumer types.FileConsumer, logger logrus.FieldLogger) *Bootstrapper {
	return &Bootstrapper{
		consumer: consumer,
		logger:   log.Component(logger, "bootstrap"),
	}
}

// ProcessExisting handles every regular file directly inside dir.
// Only a failure to list dir is returned; per-file failures belong to the consumer.
func (b *Bootstrapper) ProcessExisting(dir string) error {
	return b.ProcessExistingContext(context.Background(), dir)
}

// ProcessExistingContext is ProcessExisting with cancellation checked between files.
func (b *Bootstrapper) ProcessExistingContext(ctx context.Context, dir string) error {
	paths, err := listRegular(dir)
	if err != nil {
		return err
	}

	logger := b.logger.WithField("directory", dir)
	if len(paths) == 0 {
		logger.Info("Source directory empty")
		return nil
	}

	logger.WithField("count", len(paths)).Infof("Processing %d existing file(s)", len(paths))
	for i, path := range paths {
		if ctx.Err() != nil {
			logger.WithField("remaining", len(paths)-i).Info("Sweep interrupted")
			return ctx.Err()
		}
		b.consumer.OnFileArrived(ctx, path)
	}
	return nil
}

// listRegular returns the regular files directly inside dir, sorted by name.
func listRegular(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.FromOS("failed to list source directory", dir, err)
	}
	// ReadDir already sorts; the order is relied upon, so keep it explicit
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}
