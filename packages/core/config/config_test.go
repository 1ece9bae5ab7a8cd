package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "caserun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, DriverYAML, cfg.Data.Driver)
	assert.Equal(t, "data/yaml", cfg.Data.Dir())
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.True(t, cfg.HTTP.FollowRedirects)
	assert.Equal(t, "console", cfg.Output)
	assert.Empty(t, cfg.File)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
env: staging
host: https://api.staging.local
app_host: https://app.staging.local
data:
  driver: excel
  excel_dir: cases
  export_dir: downloads
db:
  dsn: sqlite://test.db
http:
  timeout: 5s
  rate: 2.5
  insecure: true
logging:
  level: debug
  format: json
cache:
  tenant: acme
  retries: 3
output: json
summary_file: out/summary.json
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, "https://app.staging.local", cfg.AppHost)
	assert.Equal(t, DriverExcel, cfg.Data.Driver)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "cases"), cfg.DataDir())
	assert.Equal(t, filepath.Join(filepath.Dir(path), "downloads"), cfg.Path(cfg.Data.ExportDir))
	assert.Equal(t, "sqlite://test.db", cfg.DB.DSN)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 2.5, cfg.HTTP.Rate)
	assert.True(t, cfg.HTTP.Insecure)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "acme", cfg.Cache["tenant"])
	assert.Equal(t, 3, cfg.Cache["retries"])
	assert.Equal(t, "out/summary.json", cfg.SummaryFile)
	assert.Equal(t, path, cfg.File)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "host: https://file.local\nhttp:\n  timeout: 5s\n")
	t.Setenv("CASERUN_HOST", "https://env.local")
	t.Setenv("CASERUN_HTTP_TIMEOUT", "750ms")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.local", cfg.Host)
	assert.Equal(t, 750*time.Millisecond, cfg.HTTP.Timeout)
}

func TestExplicitOverride(t *testing.T) {
	path := writeConfig(t, "output: json\n")
	v := NewViper()
	v.Set("output", "console")

	cfg, err := Load(v, path)
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.Output)
}

func TestFindsDefaultFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".caserun.yaml"), []byte("env: local\n"), 0o644))
	chdir(t, dir)

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, ".caserun.yaml", cfg.File)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "data:\n  driver: csv\noutput: xml\nhttp:\n  rate: -1\n")
	_, err := LoadFile(path)
	require.Error(t, err)

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, err.Error(), "data.driver")
	assert.Contains(t, err.Error(), "output")
	assert.Contains(t, err.Error(), "http.rate")
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestMalformedFile(t *testing.T) {
	path := writeConfig(t, "http: [unclosed\n")
	_, err := LoadFile(path)
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, path, cerr.File)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
