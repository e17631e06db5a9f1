package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const dirName = ".gradecast"

// Global configuration structure.
type Global struct {
	SampleDir        string  `mapstructure:"sample_dir" yaml:"sample_dir"`
	OutputDir        string  `mapstructure:"output_dir" yaml:"output_dir"`
	Seed             int64   `mapstructure:"seed" yaml:"seed"`
	Estimators       int     `mapstructure:"estimators" yaml:"estimators"`
	TestRatio        float64 `mapstructure:"test_ratio" yaml:"test_ratio"`
	Workers          int     `mapstructure:"workers" yaml:"workers"`
	HistogramBins    int     `mapstructure:"histogram_bins" yaml:"histogram_bins"`
	DefaultThreshold float64 `mapstructure:"default_threshold" yaml:"default_threshold"`

	// HTTP service
	ListenAddr  string `mapstructure:"listen_addr" yaml:"listen_addr"`
	MaxUploadMB int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Keys lists the settable keys in display order.
func Keys() []string {
	return []string{
		"sample_dir", "output_dir", "seed", "estimators", "test_ratio", "workers",
		"histogram_bins", "default_threshold", "listen_addr", "max_upload_mb",
		"log_level", "log_format",
	}
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.gradecast/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := defaultDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("GRADECAST")
	v.AutomaticEnv()

	v.SetDefault("sample_dir", "sample_data")
	v.SetDefault("output_dir", ".")
	v.SetDefault("seed", 42)
	v.SetDefault("estimators", 50)
	v.SetDefault("test_ratio", 0.2)
	v.SetDefault("workers", 0)
	v.SetDefault("histogram_bins", 20)
	v.SetDefault("default_threshold", 4.75)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("max_upload_mb", 32)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read; a missing file is fine, a broken one is not
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks ranges that would otherwise fail deep inside a run.
func (c *Global) Validate() error {
	switch {
	case c.Estimators < 1:
		return fmt.Errorf("invalid estimators: %d (must be >= 1)", c.Estimators)
	case c.TestRatio <= 0 || c.TestRatio >= 1:
		return fmt.Errorf("invalid test_ratio: %g (must be in (0, 1))", c.TestRatio)
	case c.Workers < 0:
		return fmt.Errorf("invalid workers: %d", c.Workers)
	case c.HistogramBins < 1:
		return fmt.Errorf("invalid histogram_bins: %d", c.HistogramBins)
	case c.DefaultThreshold < 3.5 || c.DefaultThreshold > 5:
		return fmt.Errorf("invalid default_threshold: %g (use 3.5-5.0)", c.DefaultThreshold)
	case c.MaxUploadMB < 1:
		return fmt.Errorf("invalid max_upload_mb: %d", c.MaxUploadMB)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format: %s (use text or json)", c.LogFormat)
	}
	return nil
}

// Set assigns one key from its string form and re-validates.
func (c *Global) Set(key, val string) error {
	next := *c
	switch key {
	case "sample_dir":
		next.SampleDir = val
	case "output_dir":
		next.OutputDir = val
	case "listen_addr":
		next.ListenAddr = val
	case "log_level":
		next.LogLevel = strings.ToLower(val)
	case "log_format":
		next.LogFormat = strings.ToLower(val)
	case "seed":
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid int for seed: %w", err)
		}
		next.Seed = i
	case "estimators", "workers", "histogram_bins", "max_upload_mb":
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid int for %s: %w", key, err)
		}
		switch key {
		case "estimators":
			next.Estimators = i
		case "workers":
			next.Workers = i
		case "histogram_bins":
			next.HistogramBins = i
		default:
			next.MaxUploadMB = i
		}
	case "test_ratio", "default_threshold":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid float for %s: %w", key, err)
		}
		if key == "test_ratio" {
			next.TestRatio = f
		} else {
			next.DefaultThreshold = f
		}
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Get returns the string form of one key.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "sample_dir":
		return c.SampleDir, nil
	case "output_dir":
		return c.OutputDir, nil
	case "seed":
		return strconv.FormatInt(c.Seed, 10), nil
	case "estimators":
		return strconv.Itoa(c.Estimators), nil
	case "test_ratio":
		return strconv.FormatFloat(c.TestRatio, 'g', -1, 64), nil
	case "workers":
		return strconv.Itoa(c.Workers), nil
	case "histogram_bins":
		return strconv.Itoa(c.HistogramBins), nil
	case "default_threshold":
		return strconv.FormatFloat(c.DefaultThreshold, 'g', -1, 64), nil
	case "listen_addr":
		return c.ListenAddr, nil
	case "max_upload_mb":
		return strconv.Itoa(c.MaxUploadMB), nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}
