// Package config loads the iss-sgp4-json settings from defaults, an optional
// config file and ISSGEO_* environment variables, in increasing precedence.
// Command-line flags bound to the same viper instance take precedence over
// all three.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/komasaru/iss-sgp4-json/internal/propagation"
	"github.com/komasaru/iss-sgp4-json/internal/track"
)

// EnvPrefix is the prefix of environment overrides, e.g. ISSGEO_DAYS.
const EnvPrefix = "ISSGEO"

// Config holds every runtime setting.
type Config struct {
	DataDir        string `mapstructure:"data_dir"`
	EOPFile        string `mapstructure:"eop_file"`
	LeapSecondFile string `mapstructure:"leap_second_file"`
	TLEFile        string `mapstructure:"tle_file"`

	TLECacheDir      string   `mapstructure:"tle_cache_dir"`
	TLECacheMaxFiles int      `mapstructure:"tle_cache_max_files"`
	TLESourceURL     string   `mapstructure:"tle_source_url"`
	TLEExtraURLs     []string `mapstructure:"tle_extra_urls"`

	// TLERefresh is the serve-mode refetch interval; zero disables it.
	TLERefresh time.Duration `mapstructure:"tle_refresh"`

	EOPSourceURL        string `mapstructure:"eop_source_url"`
	LeapSecondSourceURL string `mapstructure:"leap_second_source_url"`

	NoradID    int           `mapstructure:"norad_id"`
	UTCOffset  time.Duration `mapstructure:"utc_offset"`
	Days       int           `mapstructure:"days"`
	Step       time.Duration `mapstructure:"step"`
	Output     string        `mapstructure:"output"`
	Workers    int           `mapstructure:"workers"`
	Gravity    string        `mapstructure:"gravity"`
	SkipErrors bool          `mapstructure:"skip_errors"`

	HTTPAddr     string `mapstructure:"http_addr"`
	MaxPositions int    `mapstructure:"max_positions"`
	APIToken     string `mapstructure:"api_token"`
	TrustProxy   bool   `mapstructure:"trust_proxy"`

	// RateLimit is requests per minute per IP on /api/v1/; zero disables it.
	RateLimit int `mapstructure:"rate_limit"`

	StreamMaxPerIP  int           `mapstructure:"stream_max_per_ip"`
	StreamKeepalive time.Duration `mapstructure:"stream_keepalive"`
	StreamBandwidth int           `mapstructure:"stream_bandwidth"`

	LogLevel string `mapstructure:"log_level"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", ".")
	v.SetDefault("eop_file", "eop.txt")
	v.SetDefault("leap_second_file", "Leap_Second.dat")
	v.SetDefault("tle_file", "tle.txt")

	v.SetDefault("tle_cache_dir", "")
	v.SetDefault("tle_cache_max_files", 30)
	v.SetDefault("tle_source_url", "https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle")
	v.SetDefault("tle_extra_urls", []string{})
	v.SetDefault("tle_refresh", time.Duration(0))

	v.SetDefault("eop_source_url", "")
	v.SetDefault("leap_second_source_url", "https://hpiers.obspm.fr/iers/bul/bulc/Leap_Second.dat")

	v.SetDefault("norad_id", 25544)
	v.SetDefault("utc_offset", 9*time.Hour)
	v.SetDefault("days", 2)
	v.SetDefault("step", 10*time.Second)
	v.SetDefault("output", "iss.json")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("gravity", "wgs72")
	v.SetDefault("skip_errors", false)

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("max_positions", 100000)
	v.SetDefault("api_token", "")
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_limit", 600)
	v.SetDefault("stream_max_per_ip", 10)
	v.SetDefault("stream_keepalive", 30*time.Second)
	v.SetDefault("stream_bandwidth", 1<<20)

	v.SetDefault("log_level", "info")
}

// Load reads the configuration into a validated Config. An empty path
// searches the working directory for iss-sgp4-json.{yaml,toml,json}; a
// missing file is not an error in that case.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("iss-sgp4-json")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	span, spanOK := track.Config{Days: c.Days}.Span()
	switch {
	case c.Days < 1:
		errs = append(errs, fmt.Errorf("days must be positive, got %d", c.Days))
	case !spanOK:
		errs = append(errs, fmt.Errorf("days must be at most %d, got %d", track.MaxDays, c.Days))
	}
	if c.Step <= 0 {
		errs = append(errs, fmt.Errorf("step must be positive, got %s", c.Step))
	} else if c.Days >= 1 && spanOK && c.Step > span {
		errs = append(errs, fmt.Errorf("step %s exceeds the %d day span", c.Step, c.Days))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.NoradID < 0 {
		errs = append(errs, fmt.Errorf("norad_id must not be negative, got %d", c.NoradID))
	}
	if c.UTCOffset < -14*time.Hour || c.UTCOffset > 14*time.Hour {
		errs = append(errs, fmt.Errorf("utc_offset %s outside ±14h", c.UTCOffset))
	}
	if _, err := propagation.ParseGravity(c.Gravity); err != nil {
		errs = append(errs, err)
	}
	if c.TLERefresh < 0 {
		errs = append(errs, fmt.Errorf("tle_refresh must not be negative, got %s", c.TLERefresh))
	}
	if c.MaxPositions < 1 {
		errs = append(errs, fmt.Errorf("max_positions must be positive, got %d", c.MaxPositions))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit must not be negative, got %d", c.RateLimit))
	}
	if c.StreamBandwidth < 0 {
		errs = append(errs, fmt.Errorf("stream_bandwidth must not be negative, got %d", c.StreamBandwidth))
	}
	if c.StreamMaxPerIP < 1 {
		errs = append(errs, fmt.Errorf("stream_max_per_ip must be positive, got %d", c.StreamMaxPerIP))
	}
	if c.StreamKeepalive < time.Second {
		errs = append(errs, fmt.Errorf("stream_keepalive must be at least 1s, got %s", c.StreamKeepalive))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Path resolves a data file name against DataDir. Absolute names are
// returned unchanged.
func (c *Config) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// LogValue summarizes the configuration for the startup log line.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("data_dir", c.DataDir),
		slog.String("tle_cache_dir", c.TLECacheDir),
		slog.Int("norad_id", c.NoradID),
		slog.Duration("utc_offset", c.UTCOffset),
		slog.Int("days", c.Days),
		slog.Duration("step", c.Step),
		slog.String("output", c.Output),
		slog.Int("workers", c.Workers),
		slog.String("gravity", c.Gravity),
		slog.Bool("skip_errors", c.SkipErrors),
	)
}
