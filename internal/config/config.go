package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvAPIKey   = "AERODATABOX_API_KEY"
	EnvListen   = "FLIGHTCAL_LISTEN"
	EnvTimezone = "FLIGHTCAL_TIMEZONE"
	EnvLogLevel = "FLIGHTCAL_LOG_LEVEL"
)

// APIConfig describes the AeroDataBox endpoint.
type APIConfig struct {
	// BaseURL is the provider root, e.g. https://aerodatabox.p.rapidapi.com.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Host is sent as X-RapidAPI-Host.
	Host string `yaml:"host" json:"host"`
	// Key is the default API key used when a caller supplies none.
	Key string `yaml:"key,omitempty" json:"-"`
	// TimeoutSeconds bounds a single provider request.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// CalendarConfig controls calendar artifact generation.
type CalendarConfig struct {
	// QuickAddURL is the web calendar "create event" endpoint.
	QuickAddURL string `yaml:"quick_add_url" json:"quick_add_url"`
	// UIDDomain is the namespace suffix of generated event UIDs.
	UIDDomain string `yaml:"uid_domain" json:"uid_domain"`
	// ProductID goes into PRODID of generated calendar files.
	ProductID string `yaml:"product_id" json:"product_id"`
}

// WatchConfig controls the `watch` command.
type WatchConfig struct {
	// Refresh is a cron-style schedule string (e.g. "*/15 * * * *").
	Refresh string `yaml:"refresh" json:"refresh"`
	// OutputDir is where refreshed .ics files are written.
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for human-readable times in event
	// descriptions (e.g. "Europe/London"). Empty means the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	API      APIConfig      `yaml:"api" json:"api"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`
	Watch    WatchConfig    `yaml:"watch" json:"watch"`
	Log      LogConfig      `yaml:"log" json:"log"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "",
		API: APIConfig{
			BaseURL:        "https://aerodatabox.p.rapidapi.com",
			Host:           "aerodatabox.p.rapidapi.com",
			TimeoutSeconds: 15,
		},
		Calendar: CalendarConfig{
			QuickAddURL: "https://calendar.google.com/calendar/render",
			UIDDomain:   "flighttocalendar.com",
			ProductID:   "flightcal",
		},
		Watch: WatchConfig{
			Refresh:   "*/15 * * * *",
			OutputDir: "./calendars",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	c.Timezone = strings.TrimSpace(c.Timezone)

	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = def.API.BaseURL
	}
	if c.API.Host == "" {
		c.API.Host = def.API.Host
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = def.API.TimeoutSeconds
	}

	if c.Calendar.QuickAddURL == "" {
		c.Calendar.QuickAddURL = def.Calendar.QuickAddURL
	}
	if c.Calendar.UIDDomain == "" {
		c.Calendar.UIDDomain = def.Calendar.UIDDomain
	}
	if c.Calendar.ProductID == "" {
		c.Calendar.ProductID = def.Calendar.ProductID
	}

	if c.Watch.Refresh == "" {
		c.Watch.Refresh = def.Watch.Refresh
	}
	if c.Watch.OutputDir == "" {
		c.Watch.OutputDir = def.Watch.OutputDir
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
		c.Log.Format = strings.ToLower(c.Log.Format)
	default:
		// Unknown value; fall back to json.
		c.Log.Format = def.Log.Format
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// APITimeout returns the provider timeout as a duration.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// Location resolves Timezone, falling back to time.Local when it is empty
// or unknown.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// ApplyEnv overlays values from the process environment. A .env file in
// the working directory is loaded first if present; variables that are
// already set take precedence over it.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		c.API.Key = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		c.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTimezone)); v != "" {
		c.Timezone = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Log.Level = v
	}
}

// Load reads the YAML file at path and fills in defaults. On first run,
// when the file does not exist yet, the defaults are written there with
// 0600 permissions. Environment overrides are applied separately by
// ApplyEnv.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			return cfg, Save(path, cfg)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save normalizes cfg and writes it to path atomically with 0600
// permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".flightcal-config-*.tmp")
}

// WriteFileAtomic writes data to path through a temp file in the same
// directory followed by a rename, leaving the file with 0600 permissions.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
