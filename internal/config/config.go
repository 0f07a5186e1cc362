// Package config loads fmap settings from YAML, .env and FMAP_* variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend names accepted in playback.backend.
const (
	BackendLocal = "local"
	BackendMPD   = "mpd"
)

// Config holds all application configuration
type Config struct {
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Playback PlaybackConfig `mapstructure:"playback"`
	MPD      MPDConfig      `mapstructure:"mpd"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CatalogConfig holds remote catalog settings
type CatalogConfig struct {
	APIURL          string        `mapstructure:"api_url"`
	SiteURL         string        `mapstructure:"site_url"`
	APIKey          string        `mapstructure:"api_key"`
	PageLimit       int           `mapstructure:"page_limit"`
	RequestInterval time.Duration `mapstructure:"request_interval"`
	NapMin          time.Duration `mapstructure:"nap_min"` // pause between harvested downloads
	NapMax          time.Duration `mapstructure:"nap_max"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"` // 0 keeps catalog pages forever
}

// PathsConfig holds on-disk locations
type PathsConfig struct {
	DataDir     string `mapstructure:"data_dir"`     // category files and catalog.db
	CacheDir    string `mapstructure:"cache_dir"`    // downloaded tracks
	DownloadDir string `mapstructure:"download_dir"` // grab output
}

// PlaybackConfig holds player settings
type PlaybackConfig struct {
	Backend          string        `mapstructure:"backend"` // "local" or "mpd"
	OnlyNew          bool          `mapstructure:"only_new"`
	OnlyInstrumental bool          `mapstructure:"only_instrumental"`
	Shuffle          bool          `mapstructure:"shuffle"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	Volume           float64       `mapstructure:"volume"`
}

// MPDConfig holds Music Player Daemon connection settings
type MPDConfig struct {
	Network  string `mapstructure:"network"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// Default returns the default configuration
func Default() *Config {
	data := defaultDataPath()
	return &Config{
		Catalog: CatalogConfig{
			APIURL:          "https://freemusicarchive.org/api/get",
			SiteURL:         "https://freemusicarchive.org",
			PageLimit:       50,
			RequestInterval: 500 * time.Millisecond,
			NapMin:          30 * time.Second,
			NapMax:          60 * time.Second,
			CacheTTL:        24 * time.Hour,
		},
		Paths: PathsConfig{
			DataDir:     data,
			CacheDir:    filepath.Join(data, "cache"),
			DownloadDir: filepath.Join(data, "downloads"),
		},
		Playback: PlaybackConfig{
			Backend:      BackendLocal,
			PollInterval: 150 * time.Millisecond,
			Volume:       1.0,
		},
		MPD: MPDConfig{
			Network: "tcp",
			Addr:    "localhost:6600",
		},
		Logging: LoggingConfig{
			File:  filepath.Join(data, "fmap.log"),
			Level: "INFO",
		},
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "fmap")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "fmap")
	}
}

// DefaultDir returns the directory searched for config.yaml
func DefaultDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "fmap")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "fmap")
	}
}

// Load reads configuration. path names an explicit config file; when empty
// config.yaml is looked up in DefaultDir and the working directory, and a
// missing file means defaults. A .env file in the working directory is
// loaded into the environment first, and FMAP_* variables override
// everything (FMAP_CATALOG_API_KEY sets catalog.api_key).
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	cfg := Default()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.expand()
	return cfg, cfg.Validate()
}

func loadDotEnv(file string) error {
	if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error reading %s: %w", file, err)
	}
	return nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("catalog.api_url", cfg.Catalog.APIURL)
	v.SetDefault("catalog.site_url", cfg.Catalog.SiteURL)
	v.SetDefault("catalog.api_key", cfg.Catalog.APIKey)
	v.SetDefault("catalog.page_limit", cfg.Catalog.PageLimit)
	v.SetDefault("catalog.request_interval", cfg.Catalog.RequestInterval)
	v.SetDefault("catalog.nap_min", cfg.Catalog.NapMin)
	v.SetDefault("catalog.nap_max", cfg.Catalog.NapMax)
	v.SetDefault("catalog.cache_ttl", cfg.Catalog.CacheTTL)

	v.SetDefault("paths.data_dir", cfg.Paths.DataDir)
	v.SetDefault("paths.cache_dir", cfg.Paths.CacheDir)
	v.SetDefault("paths.download_dir", cfg.Paths.DownloadDir)

	v.SetDefault("playback.backend", cfg.Playback.Backend)
	v.SetDefault("playback.only_new", cfg.Playback.OnlyNew)
	v.SetDefault("playback.only_instrumental", cfg.Playback.OnlyInstrumental)
	v.SetDefault("playback.shuffle", cfg.Playback.Shuffle)
	v.SetDefault("playback.poll_interval", cfg.Playback.PollInterval)
	v.SetDefault("playback.volume", cfg.Playback.Volume)

	v.SetDefault("mpd.network", cfg.MPD.Network)
	v.SetDefault("mpd.addr", cfg.MPD.Addr)
	v.SetDefault("mpd.password", cfg.MPD.Password)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

func (c *Config) expand() {
	c.Paths.DataDir = expandHome(c.Paths.DataDir)
	c.Paths.CacheDir = expandHome(c.Paths.CacheDir)
	c.Paths.DownloadDir = expandHome(c.Paths.DownloadDir)
	c.Logging.File = expandHome(c.Logging.File)
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Playback.Backend {
	case BackendLocal, BackendMPD:
	default:
		return fmt.Errorf("unknown playback backend %q", c.Playback.Backend)
	}
	if c.Catalog.NapMax < c.Catalog.NapMin {
		return fmt.Errorf("catalog.nap_max %v is below nap_min %v", c.Catalog.NapMax, c.Catalog.NapMin)
	}
	if c.Paths.DataDir == "" || c.Paths.CacheDir == "" {
		return errors.New("paths.data_dir and paths.cache_dir must be set")
	}
	return nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
