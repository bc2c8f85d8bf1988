// Package watch feeds files arriving in the source directory to a consumer.
package watch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"ingressd/internal/errors"
	"ingressd/internal/log"
	"ingressd/pkg/types"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle position of a Loop.
type State int32

const (
	Idle State = iota
	Watching
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Watching:
		return "watching"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Loop sweeps the source directory once, then hands every arrival to the
// consumer on a single worker, in the order the source reported them.
type Loop struct {
	dir      string
	consumer types.FileConsumer
	logger   logrus.FieldLogger
	source   SourceFactory

	started atomic.Bool
	state   atomic.Int32
	skipped atomic.Int64

	// settled maps files the consumer handled but left in the source
	// directory (ignored or failed) to their modification time then.
	// Rescans skip them until they change.
	settledMu sync.Mutex
	settled   map[string]time.Time
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithSource replaces the fsnotify subscription.
func WithSource(factory SourceFactory) LoopOption {
	return func(l *Loop) { l.source = factory }
}

// NewLoop creates a Loop over dir.
func NewLoop(dir string, consumer types.FileConsumer, logger logrus.FieldLogger, opts ...LoopOption) *Loop {
	l := &Loop{
		dir:      dir,
		consumer: consumer,
		logger:   log.Component(logger, "watch").WithField("directory", dir),
		settled:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.source == nil {
		l.source = FSNotifySource(logger)
	}
	return l
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	l.logger.WithField("state", s.String()).Debug("Watch loop state changed")
}

// Run blocks until ctx is cancelled. Files already present are processed
// before the subscription starts. On cancellation the file being handled is
// finished; files still queued are left in place for the next start.
// A Loop runs once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.Newf("watch loop already started (state %s)", l.State())
	}
	defer l.setState(Stopped)

	sweep := types.ConsumerFunc(l.handle)
	if err := NewBootstrapper(sweep, l.logger).ProcessExistingContext(ctx, l.dir); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	src, err := l.source(l.dir)
	if err != nil {
		return errors.Wrapf(err, "failed to watch %s", l.dir)
	}
	l.setState(Watching)
	l.logger.Info("Watching for new files")

	q := newQueue()
	// Files that landed between the sweep and the subscription
	l.catchUp(q)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.work(ctx, q)
	}()

	runErr := l.dispatch(ctx, src, q)

	l.setState(Stopping)
	if err := src.Close(); err != nil {
		log.WithError(l.logger, err).Warn("Failed to close watcher")
	}
	left := q.close()
	wg.Wait()

	left += int(l.skipped.Load())
	if left > 0 {
		l.logger.WithField("remaining", left).Infof("Stopped with %d file(s) queued; they will be picked up on the next start", left)
	} else {
		l.logger.Info("Stopped")
	}
	return runErr
}

// dispatch moves arrivals from the source onto the queue until ctx is done.
func (l *Loop) dispatch(ctx context.Context, src Source, q *queue) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-src.Paths():
			if !ok {
				return errors.New("watcher closed unexpectedly")
			}
			if !q.push(path) {
				l.logger.WithField("file", path).Debug("Already queued")
			}
		case <-src.Overflows():
			l.logger.Warn("Events were lost, rescanning source directory")
			l.catchUp(q)
		}
	}
}

// catchUp queues files in the source directory that were never handled,
// or that changed since they were.
func (l *Loop) catchUp(q *queue) {
	paths, err := listRegular(l.dir)
	if err != nil {
		log.WithError(l.logger, err).Error("Failed to rescan source directory")
		return
	}

	for _, path := range paths {
		if l.isSettled(path) {
			continue
		}
		q.push(path)
	}

	l.settledMu.Lock()
	for path := range l.settled {
		if _, err := os.Lstat(path); err != nil {
			delete(l.settled, path)
		}
	}
	l.settledMu.Unlock()
}

// handle passes path to the consumer and notes whether it stayed behind.
func (l *Loop) handle(ctx context.Context, path string) {
	l.consumer.OnFileArrived(ctx, path)

	l.settledMu.Lock()
	defer l.settledMu.Unlock()
	if info, err := os.Lstat(path); err == nil {
		l.settled[path] = info.ModTime()
	} else {
		delete(l.settled, path)
	}
}

func (l *Loop) isSettled(path string) bool {
	l.settledMu.Lock()
	mtime, ok := l.settled[path]
	l.settledMu.Unlock()
	if !ok {
		return false
	}
	info, err := os.Lstat(path)
	return err == nil && info.ModTime().Equal(mtime)
}

// work is the only goroutine that calls the consumer.
func (l *Loop) work(ctx context.Context, q *queue) {
	// The consumer always runs to completion, even once ctx is cancelled
	callCtx := context.WithoutCancel(ctx)
	for {
		path, ok := q.pop()
		if !ok {
			return
		}
		if ctx.Err() != nil {
			l.skipped.Add(1)
			return
		}
		// A catch-up rescan may queue a file an event already delivered
		if _, err := os.Lstat(path); err != nil {
			l.logger.WithField("file", path).Debug("Queued file is gone, skipping")
			continue
		}
		l.handle(callCtx, path)
	}
}
