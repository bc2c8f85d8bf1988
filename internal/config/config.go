package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"ingressd/internal/datefmt"
	"ingressd/internal/errors"
	"ingressd/pkg/types"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for the configuration document.
const DefaultPath = "ingressd.yaml"

// DateSource selects the timestamp that feeds the date folder.
type DateSource string

const (
	DateCreated  DateSource = "created"  // filesystem creation time
	DateModified DateSource = "modified" // filesystem modification time
	DateReceived DateSource = "received" // wall clock at processing time
)

// Config is the routing configuration. It is built once by New or LoadFile
// and must not be modified after it has been handed to a Router.
// Code that builds a Config by hand must call Validate before use.
type Config struct {
	SourceDir        string            `yaml:"source_dir"`         // Watched ingress directory
	DestinationRoot  string            `yaml:"destination_root"`   // Root of the sorted tree
	LogFile          string            `yaml:"log_file"`           // Appended log file
	UseDate          bool              `yaml:"use_date"`           // Append the date folder segment
	UseProject       bool              `yaml:"use_project"`        // Append the project segment
	UseFiletype      bool              `yaml:"use_filetype"`       // Append the type segment
	DateSource       DateSource        `yaml:"date_source"`        // created, modified or received
	DateFolderFormat string            `yaml:"date_folder_format"` // e.g. "{year}/{month:02d}"
	ProjectKeywords  ProjectKeywords   `yaml:"project_keywords"`   // Ordered category -> keywords
	TypeFolders      map[string]string `yaml:"type_folders"`       // Extension -> category
	MiscFolder       string            `yaml:"misc_folder"`        // Category for unknown extensions
	Rules            []types.Rule      `yaml:"rules"`              // First match wins
	IgnorePatterns   []string          `yaml:"ignore_patterns"`    // Globs matched against the file name
	DryRun           bool              `yaml:"dry_run"`            // Log decisions without moving

	origin       string
	dateTemplate datefmt.Template
	ignore       []glob.Glob
	ignoreSource []string // IgnorePatterns that ignore was compiled from
}

// document mirrors Config with optional fields so that keys absent from the
// file keep their defaults.
type document struct {
	SourceDir        *string           `yaml:"source_dir"`
	DestinationRoot  *string           `yaml:"destination_root"`
	LogFile          *string           `yaml:"log_file"`
	UseDate          *bool             `yaml:"use_date"`
	UseProject       *bool             `yaml:"use_project"`
	UseFiletype      *bool             `yaml:"use_filetype"`
	DateSource       *DateSource       `yaml:"date_source"`
	DateFolderFormat *string           `yaml:"date_folder_format"`
	ProjectKeywords  ProjectKeywords   `yaml:"project_keywords"`
	TypeFolders      map[string]string `yaml:"type_folders"`
	MiscFolder       *string           `yaml:"misc_folder"`
	Rules            *[]types.Rule     `yaml:"rules"`
	IgnorePatterns   *[]string         `yaml:"ignore_patterns"`
	DryRun           *bool             `yaml:"dry_run"`
}

// New returns the default configuration, used when no file exists.
func New() *Config {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		SourceDir:        filepath.Join("data", "input"),
		DestinationRoot:  filepath.Join("data", "output"),
		LogFile:          "ingressd.log",
		UseDate:          true,
		UseProject:       true,
		UseFiletype:      true,
		DateSource:       DateModified,
		DateFolderFormat: "{year}/{month:02d}",
		ProjectKeywords:  ProjectKeywords{},
		TypeFolders:      DefaultTypeFolders(),
		MiscFolder:       "Misc",
		Rules:            []types.Rule{},
		IgnorePatterns:   []string{},
		origin:           "defaults",
	}
}

// DefaultTypeFolders returns the built-in extension table.
func DefaultTypeFolders() map[string]string {
	table := map[string][]string{
		"PDF":     {"pdf"},
		"Images":  {"png", "jpg", "jpeg", "gif", "bmp", "tif", "tiff"},
		"Excel":   {"xlsx", "xls", "csv", "ods"},
		"Text":    {"txt", "md", "rtf"},
		"Script":  {"py", "sh", "ps1"},
		"Archive": {"zip", "tar", "gz", "7z", "rar"},
	}
	folders := make(map[string]string)
	for category, exts := range table {
		for _, ext := range exts {
			folders[ext] = category
		}
	}
	return folders
}

// LoadFile loads configuration from path.
// If the file doesn't exist, the default configuration is returned.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, errors.NewConfigError("error reading config file", path, errors.InvalidConfig, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewConfigError("error parsing config file", path, errors.InvalidConfig, err)
	}
	cfg.merge(&doc)
	cfg.origin = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) merge(doc *document) {
	if doc.SourceDir != nil {
		c.SourceDir = *doc.SourceDir
	}
	if doc.DestinationRoot != nil {
		c.DestinationRoot = *doc.DestinationRoot
	}
	if doc.LogFile != nil {
		c.LogFile = *doc.LogFile
	}
	if doc.UseDate != nil {
		c.UseDate = *doc.UseDate
	}
	if doc.UseProject != nil {
		c.UseProject = *doc.UseProject
	}
	if doc.UseFiletype != nil {
		c.UseFiletype = *doc.UseFiletype
	}
	if doc.DateSource != nil {
		c.DateSource = *doc.DateSource
	}
	if doc.DateFolderFormat != nil {
		c.DateFolderFormat = *doc.DateFolderFormat
	}
	if doc.ProjectKeywords != nil {
		c.ProjectKeywords = doc.ProjectKeywords
	}
	// A type table in the file replaces the built-in one
	if doc.TypeFolders != nil {
		c.TypeFolders = doc.TypeFolders
	}
	if doc.MiscFolder != nil {
		c.MiscFolder = *doc.MiscFolder
	}
	if doc.Rules != nil {
		c.Rules = *doc.Rules
	}
	if doc.IgnorePatterns != nil {
		c.IgnorePatterns = *doc.IgnorePatterns
	}
	if doc.DryRun != nil {
		c.DryRun = *doc.DryRun
	}
}

// Validate checks the configuration and compiles the ignore globs and the
// date template. Normalized values are stored on the first successful call
// only; validating a Config that is already in use writes nothing.
func (c *Config) Validate() error {
	if c == nil {
		return errors.NewConfigError("invalid configuration", "", errors.InvalidConfig, fmt.Errorf("nil config"))
	}

	if strings.TrimSpace(c.SourceDir) == "" {
		return invalid("source_dir", "source directory is required")
	}
	if strings.TrimSpace(c.DestinationRoot) == "" {
		return invalid("destination_root", "destination root is required")
	}

	tpl := c.dateTemplate
	if tpl.String() != c.DateFolderFormat {
		parsed, err := datefmt.Parse(c.DateFolderFormat)
		if err != nil {
			return errors.NewConfigError("invalid configuration", "date_folder_format", errors.InvalidConfig, err)
		}
		tpl = parsed
	}
	if c.UseDate && tpl.IsZero() {
		return invalid("date_folder_format", "date folder format is required when use_date is set")
	}
	if !tpl.IsZero() {
		// Placeholders render digits only, so a sample date exposes every literal element
		sample := tpl.Render(time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC))
		if err := checkSegment(sample); err != nil {
			return errors.NewConfigError("invalid configuration", "date_folder_format", errors.InvalidConfig, err)
		}
	}

	misc := c.MiscFolder
	if misc == "" {
		misc = "Misc"
	}
	if err := checkSegment(misc); err != nil {
		return errors.NewConfigError("invalid configuration", "misc_folder", errors.InvalidConfig, err)
	}

	for i, rule := range c.Rules {
		if strings.TrimSpace(rule.Target) == "" {
			return invalid(fmt.Sprintf("rules[%d]", i), "rule target is required")
		}
		if err := checkSegment(rule.Target); err != nil {
			return errors.NewConfigError("invalid configuration", fmt.Sprintf("rules[%d]", i), errors.InvalidConfig, err)
		}
	}

	for _, pc := range c.ProjectKeywords {
		if err := checkSegment(pc.Category); err != nil {
			return errors.NewConfigError("invalid configuration", "project_keywords", errors.InvalidConfig, err)
		}
	}

	normalized := true
	for ext, category := range c.TypeFolders {
		if err := checkSegment(category); err != nil {
			return errors.NewConfigError("invalid configuration", "type_folders."+ext, errors.InvalidConfig, err)
		}
		if NormalizeExt(ext) != ext {
			normalized = false
		}
	}
	var folders map[string]string
	if !normalized {
		folders = make(map[string]string, len(c.TypeFolders))
		for ext, category := range c.TypeFolders {
			folders[NormalizeExt(ext)] = category
		}
	}

	compileIgnore := !slices.Equal(c.ignoreSource, c.IgnorePatterns)
	var ignore []glob.Glob
	if compileIgnore {
		ignore = make([]glob.Glob, 0, len(c.IgnorePatterns))
		for _, pattern := range c.IgnorePatterns {
			g, err := glob.Compile(pattern)
			if err != nil {
				return errors.NewConfigError("invalid configuration", "ignore_patterns", errors.InvalidConfig,
					errors.NewPatternError("invalid ignore pattern", pattern, err))
			}
			ignore = append(ignore, g)
		}
	}

	if c.MiscFolder != misc {
		c.MiscFolder = misc
	}
	if folders != nil {
		c.TypeFolders = folders
	}
	if tpl.String() != c.dateTemplate.String() {
		c.dateTemplate = tpl
	}
	if compileIgnore {
		c.ignore = ignore
		c.ignoreSource = slices.Clone(c.IgnorePatterns)
	}
	return nil
}

func invalid(param, msg string) error {
	return errors.NewConfigError("invalid configuration", param, errors.InvalidConfig, errors.New(msg))
}

// checkSegment rejects folder labels that would escape the destination root.
func checkSegment(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("folder name cannot be empty")
	}
	if filepath.IsAbs(s) || strings.HasPrefix(s, "/") {
		return errors.Newf("folder %q must be relative", s)
	}
	for _, elem := range strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '\\' }) {
		if elem == ".." {
			return errors.Newf("folder %q must not contain ..", s)
		}
	}
	return nil
}

// NormalizeExt lower-cases an extension and strips its leading dot.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimLeft(ext, "."))
}

// IsIgnored reports whether filename matches one of the ignore globs.
func (c *Config) IsIgnored(filename string) bool {
	for _, g := range c.ignore {
		if g.Match(filename) {
			return true
		}
	}
	return false
}

// DateTemplate returns the compiled date folder template.
func (c *Config) DateTemplate() datefmt.Template {
	return c.dateTemplate
}

// Origin names where the configuration came from: a file path or "defaults".
func (c *Config) Origin() string {
	if c.origin == "" {
		return "defaults"
	}
	return c.origin
}

// LockPath is the single-instance lock file, kept beside the log file.
func (c *Config) LockPath() string {
	return filepath.Join(filepath.Dir(c.LogFile), ".ingressd.lock")
}

// EnsurePaths creates the source directory, the destination root and the
// log file's directory.
func (c *Config) EnsurePaths() error {
	for _, dir := range []string{c.SourceDir, c.DestinationRoot, filepath.Dir(c.LogFile)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.FromOS("failed to create directory", dir, err)
		}
	}
	return nil
}

// Save writes the configuration document to path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
