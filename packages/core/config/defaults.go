package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Env:  "dev",
		Host: "",
		Data: DataConfig{
			Driver:   DriverYAML,
			YAMLDir:  "data/yaml",
			ExcelDir: "data/excel",
		},
		HTTP: HTTPConfig{
			Timeout:         30 * time.Second,
			FollowRedirects: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Output: "console",
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("env", d.Env)
	v.SetDefault("host", d.Host)
	v.SetDefault("app_host", d.AppHost)
	v.SetDefault("data.driver", d.Data.Driver)
	v.SetDefault("data.yaml_dir", d.Data.YAMLDir)
	v.SetDefault("data.excel_dir", d.Data.ExcelDir)
	v.SetDefault("data.export_dir", d.Data.ExportDir)
	v.SetDefault("db.dsn", d.DB.DSN)
	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.insecure", d.HTTP.Insecure)
	v.SetDefault("http.proxy", d.HTTP.Proxy)
	v.SetDefault("http.follow_redirects", d.HTTP.FollowRedirects)
	v.SetDefault("http.rate", d.HTTP.Rate)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("output", d.Output)
	v.SetDefault("summary_file", d.SummaryFile)
}
