// Package route computes where an incoming file belongs.
//
// The destination is a list of folder segments appended to the destination
// root, always in this order and each only when enabled and found:
//
//	[rule target] [project] [type category] [date folder]
package route

import (
	"os"
	"path/filepath"
	"time"

	"ingressd/internal/config"
	"ingressd/internal/errors"
)

// Stamps holds the timestamps of a file that the date segment can use.
type Stamps struct {
	Modified time.Time
	Created  time.Time
}

// StatFunc reads the timestamps of path.
type StatFunc func(path string) (Stamps, error)

// Resolver turns a file path into destination segments.
// It is safe for concurrent use as long as its config is not modified.
type Resolver struct {
	cfg      *config.Config
	stat     StatFunc
	now      func() time.Time
	location *time.Location
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock replaces the wall clock used for the "received" date source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithStat replaces the filesystem timestamp reader.
func WithStat(stat StatFunc) Option {
	return func(r *Resolver) { r.stat = stat }
}

// WithLocation sets the time zone used to render date folders. Default is local time.
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) { r.location = loc }
}

// NewResolver creates a resolver for cfg, which must already be validated.
func NewResolver(cfg *config.Config, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:      cfg,
		stat:     ReadStamps,
		now:      time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve computes segments for path with the real clock and filesystem.
func Resolve(path string, cfg *config.Config) ([]string, error) {
	return NewResolver(cfg).Resolve(path)
}

// Resolve returns the ordered folder segments for path.
// The filesystem is only consulted when the date segment needs a file timestamp.
func (r *Resolver) Resolve(path string) ([]string, error) {
	name := filepath.Base(path)
	segments := make([]string, 0, 4)

	if target, ok := r.MatchRule(name); ok {
		segments = append(segments, target)
	}

	if r.cfg.UseProject {
		if project, ok := r.cfg.ProjectKeywords.Match(name); ok {
			segments = append(segments, project)
		}
	}

	if r.cfg.UseFiletype {
		segments = append(segments, r.TypeCategory(name))
	}

	if r.cfg.UseDate {
		stamp, err := r.timestamp(path)
		if err != nil {
			return nil, err
		}
		if folder := r.cfg.DateTemplate().Render(stamp.In(r.location)); folder != "" {
			segments = append(segments, filepath.FromSlash(folder))
		}
	}

	return segments, nil
}

// MatchRule returns the target of the first rule matching filename.
func (r *Resolver) MatchRule(filename string) (string, bool) {
	for _, rule := range r.cfg.Rules {
		if rule.Matches(filename) {
			return rule.Target, true
		}
	}
	return "", false
}

// TypeCategory maps the file extension to its category, or the misc folder.
func (r *Resolver) TypeCategory(filename string) string {
	ext := config.NormalizeExt(Extension(filename))
	if ext != "" {
		if category, ok := r.cfg.TypeFolders[ext]; ok {
			return category
		}
	}
	return r.cfg.MiscFolder
}

// Extension returns the suffix after the last dot, including the dot.
// A leading dot marks a hidden file, not an extension: ".bashrc" has none,
// ".config.yaml" has ".yaml".
func Extension(filename string) string {
	ext := filepath.Ext(filename)
	if ext == filename {
		return ""
	}
	return ext
}

func (r *Resolver) timestamp(path string) (time.Time, error) {
	if r.cfg.DateSource == config.DateReceived {
		return r.now(), nil
	}

	stamps, err := r.stat(path)
	if err != nil {
		return time.Time{}, errors.FromOS("failed to read file timestamps", path, err)
	}
	if r.cfg.DateSource == config.DateCreated && !stamps.Created.IsZero() {
		return stamps.Created, nil
	}
	return stamps.Modified, nil
}

// ReadStamps reads modification and creation time from the filesystem.
// Creation time falls back to the inode change time where the platform has
// no birth time, and to the modification time where it has neither.
func ReadStamps(path string) (Stamps, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Stamps{}, err
	}
	created, ok := creationTime(path, info)
	if !ok {
		created = info.ModTime()
	}
	return Stamps{Modified: info.ModTime(), Created: created}, nil
}
