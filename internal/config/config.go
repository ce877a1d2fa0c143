// File: internal/config/config.go
package config

import (
	"fmt"
	"runtime"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Run sources accepted by analysis.source.
const (
	SourceFilesystem = "filesystem"
	SourcePostgres   = "postgres"
)

// Score bases accepted by analysis.basis.
const (
	BasisWeighted = "weighted"
	BasisCVSS     = "cvss"
)

// Report formats accepted by analysis.formats.
const (
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatSARIF    = "sarif"
)

// Interface defines the contract for accessing application configuration.
// Commands depend on it so tests can hand in a prepared value.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Storage() StorageConfig
	Analysis() AnalysisConfig

	// SetAnalysisConfig replaces the analysis section after CLI flags have
	// been applied on top of the file and environment values.
	SetAnalysisConfig(ac AnalysisConfig)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	StorageCfg  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	AnalysisCfg AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
}

// --- Interface Method Implementations ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Storage() StorageConfig   { return c.StorageCfg }
func (c *Config) Analysis() AnalysisConfig { return c.AnalysisCfg }

func (c *Config) SetAnalysisConfig(ac AnalysisConfig) { c.AnalysisCfg = ac }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// StorageConfig holds the S3-compatible bucket the report directory is
// published to. Publishing is disabled while Bucket is empty.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
}

// Enabled reports whether a destination bucket is configured.
func (s StorageConfig) Enabled() bool { return s.Bucket != "" }

// AnalysisConfig controls where runs are read from and how they are scored
// and rendered.
type AnalysisConfig struct {
	Source    string `mapstructure:"source" yaml:"source"`
	InputDir  string `mapstructure:"input_dir" yaml:"input_dir"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	// Model restricts loading to a single model's runs. Empty pools all models.
	Model       string   `mapstructure:"model" yaml:"model"`
	Manifest    string   `mapstructure:"manifest" yaml:"manifest"`
	CVSSMapping string   `mapstructure:"cvss_mapping" yaml:"cvss_mapping"`
	Basis       string   `mapstructure:"basis" yaml:"basis"`
	Concurrency int      `mapstructure:"concurrency" yaml:"concurrency"`
	Formats     []string `mapstructure:"formats" yaml:"formats"`
	TopCWEs     int      `mapstructure:"top_cwes" yaml:"top_cwes"`
	Persist     bool     `mapstructure:"persist" yaml:"persist"`
	Publish     bool     `mapstructure:"publish" yaml:"publish"`
}

// NewDefaultConfig creates a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "llmvulnbench")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.url", "")

	// -- Storage --
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.prefix", "analysis")

	// -- Analysis --
	v.SetDefault("analysis.source", SourceFilesystem)
	v.SetDefault("analysis.input_dir", "analysis/vuln_runs")
	v.SetDefault("analysis.output_dir", "analysis")
	v.SetDefault("analysis.basis", BasisWeighted)
	v.SetDefault("analysis.concurrency", runtime.NumCPU())
	v.SetDefault("analysis.formats", []string{FormatCSV, FormatMarkdown, FormatJSON})
	v.SetDefault("analysis.top_cwes", 10)
	v.SetDefault("analysis.persist", false)
	v.SetDefault("analysis.publish", false)
}

// NewConfigFromViper unmarshals, expands and validates a configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for credentials so they never need to live
	// in a config file.
	_ = v.BindEnv("database.url", "LLMVB_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("storage.access_key", "LLMVB_STORAGE_ACCESS_KEY", "S3_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "LLMVB_STORAGE_SECRET_KEY", "S3_SECRET_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves a leading ~ in every path setting.
func (c *Config) ExpandPaths() error {
	paths := []*string{
		&c.AnalysisCfg.InputDir,
		&c.AnalysisCfg.OutputDir,
		&c.AnalysisCfg.Manifest,
		&c.AnalysisCfg.CVSSMapping,
		&c.LoggerCfg.LogFile,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AnalysisCfg.Validate(); err != nil {
		return fmt.Errorf("analysis configuration invalid: %w", err)
	}
	if c.AnalysisCfg.Source == SourcePostgres && c.DatabaseCfg.URL == "" {
		return fmt.Errorf("database.url is required when analysis.source is %q", SourcePostgres)
	}
	if c.AnalysisCfg.Persist && c.DatabaseCfg.URL == "" {
		return fmt.Errorf("database.url is required when analysis.persist is enabled")
	}
	if c.AnalysisCfg.Publish && !c.StorageCfg.Enabled() {
		return fmt.Errorf("storage.bucket is required when analysis.publish is enabled")
	}
	if c.StorageCfg.Enabled() && c.StorageCfg.Endpoint == "" {
		return fmt.Errorf("storage.endpoint is required when storage.bucket is set")
	}
	return nil
}

// Validate checks the analysis section.
func (a *AnalysisConfig) Validate() error {
	switch a.Source {
	case SourceFilesystem:
		if a.InputDir == "" {
			return fmt.Errorf("input_dir is required for the %s source", SourceFilesystem)
		}
	case SourcePostgres:
	default:
		return fmt.Errorf("unknown source %q", a.Source)
	}

	if a.Basis != BasisWeighted && a.Basis != BasisCVSS {
		return fmt.Errorf("unknown basis %q", a.Basis)
	}
	if a.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer")
	}
	if a.TopCWEs < 0 {
		return fmt.Errorf("top_cwes must not be negative")
	}
	if a.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	for _, f := range a.Formats {
		switch f {
		case FormatCSV, FormatMarkdown, FormatJSON, FormatSARIF:
		default:
			return fmt.Errorf("unsupported format %q", f)
		}
	}
	return nil
}
