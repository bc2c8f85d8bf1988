// Package organize moves incoming files into the destination tree.
package organize

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ingressd/internal/config"
	"ingressd/internal/errors"
	"ingressd/internal/log"
	"ingressd/internal/route"
	"ingressd/pkg/types"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// Stats summarizes what a Router has done so far.
type Stats struct {
	Moved        int       // Files relocated (or that would be, in dry run)
	Ignored      int       // Files skipped by an ignore pattern
	Failed       int       // Files that could not be routed
	LastActivity time.Time // Time of the last processed file
}

// Router owns a configuration and routes one file at a time:
// ignore check, segment resolution, directory creation, overwrite check, move.
type Router struct {
	cfg      *config.Config
	resolver *route.Resolver
	mover    Mover
	logger   logrus.FieldLogger
	dryRun   bool

	// mu serializes ProcessFile. The steps after resolution are not atomic
	// together, so two calls must never race on the same destination name.
	mu sync.Mutex

	statsMu sync.RWMutex
	stats   Stats
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithMover replaces the filesystem mover.
func WithMover(m Mover) RouterOption {
	return func(r *Router) { r.mover = m }
}

// WithResolver replaces the path resolver.
func WithResolver(res *route.Resolver) RouterOption {
	return func(r *Router) { r.resolver = res }
}

// WithDryRun logs decisions without touching the filesystem.
func WithDryRun(dryRun bool) RouterOption {
	return func(r *Router) { r.dryRun = dryRun }
}

// NewRouter validates cfg and builds a Router. cfg must not be modified afterwards.
func NewRouter(cfg *config.Config, logger logrus.FieldLogger, opts ...RouterOption) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Router{
		cfg:    cfg,
		mover:  NewFileMover(),
		logger: log.Component(logger, "router"),
		dryRun: cfg.DryRun,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.resolver == nil {
		r.resolver = route.NewResolver(cfg)
	}
	return r, nil
}

// Ensure Router can be fed by the watch loop
var _ types.FileConsumer = (*Router)(nil)

// OnFileArrived routes path. Failures are already logged by ProcessFile.
func (r *Router) OnFileArrived(_ context.Context, path string) {
	_, _ = r.ProcessFile(path)
}

// ProcessFile moves path into the destination tree and returns where it went.
// Ignored files are left in place and their original path is returned.
// Errors are logged before they are returned; callers can keep going.
func (r *Router) ProcessFile(path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := filepath.Base(path)
	logger := r.logger.WithField("file", name)

	if r.cfg.IsIgnored(name) {
		logger.Infof("File %s ignored (ignore pattern)", name)
		r.record(func(s *Stats) { s.Ignored++ })
		return path, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return path, r.fail(logger, "stat", errors.FromOS("source file unavailable", path, err))
	}
	if !info.Mode().IsRegular() {
		return path, r.fail(logger, "stat", errors.NewFileError("not a regular file", path, errors.InvalidPath, nil))
	}

	segments, err := r.resolver.Resolve(path)
	if err != nil {
		return path, r.fail(logger, "resolve", err)
	}
	logger.WithField("segments", segments).Debug("Resolved destination segments")

	targetDir := filepath.Join(append([]string{r.cfg.DestinationRoot}, segments...)...)
	destination := filepath.Join(targetDir, name)

	if samePath(path, destination) {
		logger.Debug("File is already at its destination")
		return destination, nil
	}

	moveFields := logrus.Fields{
		"source":      path,
		"destination": destination,
		"size":        humanize.Bytes(uint64(info.Size())),
	}

	if r.dryRun {
		logger.WithFields(moveFields).Infof("Would move %s -> %s", path, destination)
		r.record(func(s *Stats) { s.Moved++ })
		return destination, nil
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return path, r.fail(logger, "mkdir", errors.FromOS("failed to create destination directory", targetDir, err))
	}

	if existing, err := os.Stat(destination); err == nil {
		if existing.IsDir() {
			return path, r.fail(logger, "overwrite-check",
				errors.NewFileError("destination is a directory", destination, errors.InvalidPath, nil))
		}
		// Same name means the same document re-delivered; last write wins
		logger.WithField("destination", destination).Warnf("Destination already exists, replacing: %s", destination)
	}

	if err := r.mover.Move(path, destination); err != nil {
		return path, r.fail(logger, "move", errors.FromOS("failed to move file", path, err))
	}

	logger.WithFields(moveFields).Infof("%s -> %s", path, destination)
	r.record(func(s *Stats) { s.Moved++ })
	return destination, nil
}

// fail logs a per-file failure and counts it. Vanished sources are expected
// under concurrent delivery and log at warning level.
func (r *Router) fail(logger logrus.FieldLogger, step string, err error) error {
	entry := log.WithError(logger, err).WithField("step", step)
	if errors.IsNotFound(err) {
		entry.Warn("Source file vanished before it could be routed")
	} else {
		entry.Error("Failed to route file")
	}
	r.record(func(s *Stats) { s.Failed++ })
	return err
}

func (r *Router) record(update func(s *Stats)) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	update(&r.stats)
	r.stats.LastActivity = time.Now()
}

// Stats returns a snapshot of the counters.
func (r *Router) Stats() Stats {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()
	return r.stats
}

// Destination computes where path would go without moving it.
func (r *Router) Destination(path string) (string, error) {
	name := filepath.Base(path)
	if r.cfg.IsIgnored(name) {
		return path, nil
	}
	segments, err := r.resolver.Resolve(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{r.cfg.DestinationRoot}, segments...), name)...), nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
