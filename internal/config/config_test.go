package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"ingressd/internal/config"
	"ingressd/internal/errors"
	"ingressd/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a temporary YAML config file
func createTestYAML(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	require.NoError(t, err)
	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())
	return tmpFile.Name()
}

const (
	validYAML = `
source_dir: /srv/inbox
destination_root: /srv/sorted
log_file: /var/log/ingressd/ingressd.log
use_date: false
use_project: true
use_filetype: true
date_source: created
date_folder_format: "{year}/{month:02d}/{day:02d}"
project_keywords:
  Zeta:
    - zeta
    - omega
  Alpha: alpha
type_folders:
  .PDF: Documents
  png: Pictures
rules:
  - name: invoices
    patterns: ["invoice", "rechnung"]
    target: Finance
ignore_patterns:
  - "*.tmp"
  - ".~lock*"
`
	invalidSyntaxYAML = `
source_dir: "/srv/inbox
use_date: [not, a, bool
`
	badTemplateYAML = `
date_folder_format: "{year}/{hour}"
`
	badGlobYAML = `
ignore_patterns:
  - "[abc"
`
	emptyRuleTargetYAML = `
rules:
  - name: broken
    patterns: ["x"]
    target: ""
`
)

func TestLoadFile(t *testing.T) {
	t.Run("load valid config", func(t *testing.T) {
		cfg, err := config.LoadFile(createTestYAML(t, validYAML))
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "/srv/inbox", cfg.SourceDir)
		assert.Equal(t, "/srv/sorted", cfg.DestinationRoot)
		assert.Equal(t, "/var/log/ingressd/ingressd.log", cfg.LogFile)
		assert.False(t, cfg.UseDate)
		assert.True(t, cfg.UseProject)
		assert.Equal(t, config.DateCreated, cfg.DateSource)
		assert.Equal(t, "{year}/{month:02d}/{day:02d}", cfg.DateTemplate().String())

		// Declared order is preserved
		require.Len(t, cfg.ProjectKeywords, 2)
		assert.Equal(t, "Zeta", cfg.ProjectKeywords[0].Category)
		assert.Equal(t, []string{"zeta", "omega"}, cfg.ProjectKeywords[0].Keywords)
		assert.Equal(t, "Alpha", cfg.ProjectKeywords[1].Category)
		assert.Equal(t, []string{"alpha"}, cfg.ProjectKeywords[1].Keywords)

		// The file's table replaces the built-in one, with normalized keys
		assert.Equal(t, map[string]string{"pdf": "Documents", "png": "Pictures"}, cfg.TypeFolders)

		require.Len(t, cfg.Rules, 1)
		assert.Equal(t, types.Rule{Name: "invoices", Patterns: []string{"invoice", "rechnung"}, Target: "Finance"}, cfg.Rules[0])

		assert.True(t, cfg.IsIgnored("download.tmp"))
		assert.True(t, cfg.IsIgnored(".~lock.report.odt#"))
		assert.False(t, cfg.IsIgnored("report.pdf"))
		assert.Equal(t, filepath.Join("/var/log/ingressd", ".ingressd.lock"), cfg.LockPath())
	})

	t.Run("absent keys keep defaults", func(t *testing.T) {
		cfg, err := config.LoadFile(createTestYAML(t, "source_dir: in\n"))
		require.NoError(t, err)

		defaults := config.New()
		assert.Equal(t, "in", cfg.SourceDir)
		assert.Equal(t, defaults.DestinationRoot, cfg.DestinationRoot)
		assert.Equal(t, defaults.TypeFolders, cfg.TypeFolders)
		assert.True(t, cfg.UseDate)
		assert.True(t, cfg.UseProject)
		assert.True(t, cfg.UseFiletype)
		assert.Equal(t, config.DateModified, cfg.DateSource)
		assert.Equal(t, "Misc", cfg.MiscFolder)
	})

	t.Run("load non-existent file", func(t *testing.T) {
		cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "does_not_exist.yaml"))
		require.NoError(t, err, "Loading non-existent file should return default config, not an error")

		defaults := config.New()
		assert.Equal(t, defaults.SourceDir, cfg.SourceDir)
		assert.Equal(t, defaults.DestinationRoot, cfg.DestinationRoot)
		assert.Equal(t, "defaults", cfg.Origin())
		assert.Equal(t, "2024/03", cfg.DateTemplate().Render(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("invalid YAML syntax", func(t *testing.T) {
		_, err := config.LoadFile(createTestYAML(t, invalidSyntaxYAML))
		require.Error(t, err)
		assert.True(t, errors.IsInvalidConfig(err))
		assert.Contains(t, err.Error(), "error parsing config file")
	})

	t.Run("unknown date placeholder", func(t *testing.T) {
		_, err := config.LoadFile(createTestYAML(t, badTemplateYAML))
		require.Error(t, err)
		assert.True(t, errors.IsInvalidConfig(err))
		assert.Contains(t, err.Error(), "date_folder_format")
	})

	t.Run("bad ignore glob surfaces at load time", func(t *testing.T) {
		_, err := config.LoadFile(createTestYAML(t, badGlobYAML))
		require.Error(t, err)
		assert.True(t, errors.IsInvalidConfig(err))
		assert.True(t, errors.IsInvalidPattern(err))
	})

	t.Run("rule without target", func(t *testing.T) {
		_, err := config.LoadFile(createTestYAML(t, emptyRuleTargetYAML))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rules[0]")
	})
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *config.Config)
		wantErr bool
	}{
		{"defaults", func(c *config.Config) {}, false},
		{"empty source", func(c *config.Config) { c.SourceDir = " " }, true},
		{"empty destination", func(c *config.Config) { c.DestinationRoot = "" }, true},
		{"empty template with dates", func(c *config.Config) { c.DateFolderFormat = "" }, true},
		{"empty template without dates", func(c *config.Config) {
			c.UseDate = false
			c.DateFolderFormat = ""
		}, false},
		{"rule escaping root", func(c *config.Config) {
			c.Rules = []types.Rule{{Patterns: []string{"x"}, Target: "../outside"}}
		}, true},
		{"absolute rule target", func(c *config.Config) {
			c.Rules = []types.Rule{{Patterns: []string{"x"}, Target: "/etc"}}
		}, true},
		{"nested rule target", func(c *config.Config) {
			c.Rules = []types.Rule{{Patterns: []string{"x"}, Target: "Finance/Invoices"}}
		}, false},
		{"rule without patterns is allowed", func(c *config.Config) {
			c.Rules = []types.Rule{{Name: "never", Target: "Never"}}
		}, false},
		{"empty type category", func(c *config.Config) { c.TypeFolders = map[string]string{"pdf": ""} }, true},
		{"empty project category", func(c *config.Config) {
			c.ProjectKeywords = config.ProjectKeywords{{Category: "", Keywords: []string{"x"}}}
		}, true},
		{"unrecognized date source means modified", func(c *config.Config) { c.DateSource = "accessed" }, false},
		{"date folder escaping root", func(c *config.Config) { c.DateFolderFormat = "../../{year}" }, true},
		{"date folder with parent element", func(c *config.Config) { c.DateFolderFormat = "{year}/../{month}" }, true},
		{"absolute date folder", func(c *config.Config) { c.DateFolderFormat = "/{year}/{month:02d}" }, true},
		{"date folder with literal text", func(c *config.Config) { c.DateFolderFormat = "Y{year}/M{month:02d}" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.IsInvalidConfig(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLeavesValidConfigUntouched(t *testing.T) {
	cfg, err := config.LoadFile(createTestYAML(t, validYAML))
	require.NoError(t, err)

	folders := reflect.ValueOf(cfg.TypeFolders).Pointer()
	misc := cfg.MiscFolder
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.Validate())

	assert.Equal(t, folders, reflect.ValueOf(cfg.TypeFolders).Pointer(), "type table must not be replaced")
	assert.Equal(t, misc, cfg.MiscFolder)
	assert.True(t, cfg.IsIgnored("download.tmp"))

	// Changing the patterns before first use is picked up
	cfg.IgnorePatterns = []string{"*.part"}
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.IsIgnored("movie.part"))
	assert.False(t, cfg.IsIgnored("download.tmp"))
}

func TestValidateNormalizesHandBuiltConfig(t *testing.T) {
	cfg := config.New()
	cfg.TypeFolders = map[string]string{".JPG": "Photos"}
	cfg.MiscFolder = ""
	require.NoError(t, cfg.Validate())

	assert.Equal(t, map[string]string{"jpg": "Photos"}, cfg.TypeFolders)
	assert.Equal(t, "Misc", cfg.MiscFolder)
}

func TestDefaultTypeFolders(t *testing.T) {
	folders := config.DefaultTypeFolders()
	assert.Equal(t, "PDF", folders["pdf"])
	assert.Equal(t, "Images", folders["jpeg"])
	assert.Equal(t, "Excel", folders["csv"])
	assert.Equal(t, "Text", folders["md"])
	assert.Equal(t, "Script", folders["ps1"])
	assert.Equal(t, "Archive", folders["7z"])
	assert.Len(t, folders, 23)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ingressd.yaml")

	cfg := config.New()
	cfg.ProjectKeywords = config.ProjectKeywords{
		{Category: "Zulu", Keywords: []string{"z"}},
		{Category: "Alpha", Keywords: []string{"a", "b"}},
	}
	cfg.Rules = []types.Rule{{Name: "tax", Patterns: []string{"tax"}, Target: "Tax"}}
	cfg.IgnorePatterns = []string{"*.part"}
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.Save(path))

	loaded, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.ProjectKeywords, loaded.ProjectKeywords)
	assert.Equal(t, cfg.Rules, loaded.Rules)
	assert.Equal(t, cfg.TypeFolders, loaded.TypeFolders)
	assert.True(t, loaded.IsIgnored("movie.part"))
	assert.Equal(t, path, loaded.Origin())
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := config.New()
	cfg.SourceDir = filepath.Join(root, "in")
	cfg.DestinationRoot = filepath.Join(root, "out", "sorted")
	cfg.LogFile = filepath.Join(root, "logs", "ingressd.log")
	require.NoError(t, cfg.Validate())

	require.NoError(t, cfg.EnsurePaths())
	for _, dir := range []string{cfg.SourceDir, cfg.DestinationRoot, filepath.Dir(cfg.LogFile)} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	// Idempotent
	assert.NoError(t, cfg.EnsurePaths())
}

func TestProjectKeywordsMatch(t *testing.T) {
	table := config.ProjectKeywords{
		{Category: "Apollo", Keywords: []string{"apollo", "moon"}},
		{Category: "Gemini", Keywords: []string{"gemini", "moon"}},
		{Category: "Blank", Keywords: []string{""}},
	}

	category, ok := table.Match("MOON_landing.pdf")
	assert.True(t, ok)
	assert.Equal(t, "Apollo", category, "first declared category wins")

	category, ok = table.Match("gemini-7.txt")
	assert.True(t, ok)
	assert.Equal(t, "Gemini", category)

	_, ok = table.Match("unrelated.txt")
	assert.False(t, ok, "empty keywords never match")
}
