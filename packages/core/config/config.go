package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// CASERUN_HTTP_TIMEOUT=10s.
const EnvPrefix = "CASERUN"

// ConfigFilenames are searched in order when no path is given.
var ConfigFilenames = []string{
	"caserun.yaml",
	"caserun.yml",
	".caserun.yaml",
}

const (
	DriverYAML  = "yaml"
	DriverExcel = "excel"
)

type Config struct {
	Env         string         `mapstructure:"env"`
	Host        string         `mapstructure:"host"`
	AppHost     string         `mapstructure:"app_host"`
	Data        DataConfig     `mapstructure:"data"`
	DB          DBConfig       `mapstructure:"db"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Cache       map[string]any `mapstructure:"cache"`
	Output      string         `mapstructure:"output"`
	SummaryFile string         `mapstructure:"summary_file"`

	// File is the config file that was read, empty when defaults were used.
	File string `mapstructure:"-"`
}

type DataConfig struct {
	Driver    string `mapstructure:"driver"`
	YAMLDir   string `mapstructure:"yaml_dir"`
	ExcelDir  string `mapstructure:"excel_dir"`
	ExportDir string `mapstructure:"export_dir"`
}

// Dir returns the directory for the configured driver.
func (d DataConfig) Dir() string {
	if d.Driver == DriverExcel {
		return d.ExcelDir
	}
	return d.YAMLDir
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

type HTTPConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	Insecure        bool          `mapstructure:"insecure"`
	Proxy           string        `mapstructure:"proxy"`
	FollowRedirects bool          `mapstructure:"follow_redirects"`
	// Rate caps requests per second; zero means unlimited.
	Rate float64 `mapstructure:"rate"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Error reports a configuration that cannot be used.
type Error struct {
	File string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.File != "" {
		fmt.Fprintf(&b, " %s", e.File)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key %s", e.Key)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewViper returns a viper instance with defaults and environment overrides
// registered. Callers may bind flags onto it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, or the first of ConfigFilenames found in the working
// directory when path is empty, and decodes the merged settings. A missing
// default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	file, err := locate(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{File: file, Err: err}
		}
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, &Error{File: file, Err: err}
	}
	cfg.File = file
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile is Load with a fresh viper instance.
func LoadFile(path string) (*Config, error) {
	return Load(NewViper(), path)
}

func locate(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", &Error{File: path, Err: err}
		}
		return path, nil
	}
	for _, name := range ConfigFilenames {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}

// Validate checks enumerated keys and numeric ranges.
func (c *Config) Validate() error {
	var errs []error
	switch c.Data.Driver {
	case DriverYAML, DriverExcel:
	default:
		errs = append(errs, &Error{File: c.File, Key: "data.driver", Err: fmt.Errorf("unknown driver %q", c.Data.Driver)})
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, &Error{File: c.File, Key: "logging.format", Err: fmt.Errorf("unknown format %q", c.Logging.Format)})
	}
	switch c.Output {
	case "console", "json":
	default:
		errs = append(errs, &Error{File: c.File, Key: "output", Err: fmt.Errorf("unknown output %q", c.Output)})
	}
	if c.HTTP.Timeout < 0 {
		errs = append(errs, &Error{File: c.File, Key: "http.timeout", Err: errors.New("must not be negative")})
	}
	if c.HTTP.Rate < 0 {
		errs = append(errs, &Error{File: c.File, Key: "http.rate", Err: errors.New("must not be negative")})
	}
	return errors.Join(errs...)
}

// DataDir returns the configured driver's directory, see Path.
func (c *Config) DataDir() string {
	return c.Path(c.Data.Dir())
}

// Path resolves a relative path against the config file's directory.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.File == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.File), p)
}
