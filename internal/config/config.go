package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models flightclaim.yml.
type Config struct {
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		PublicURL string `yaml:"public_url"`
		RateLimit struct {
			RequestsPerMinute int `yaml:"requests_per_minute"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Lookups struct {
		AirportsURL string        `yaml:"airports_url"`
		FlightsURL  string        `yaml:"flights_url"`
		Timeout     time.Duration `yaml:"timeout"`
		CacheTTL    time.Duration `yaml:"cache_ttl"`
	} `yaml:"lookups"`
	Uploads struct {
		Dir          string   `yaml:"dir"`
		StagingDir   string   `yaml:"staging_dir"`
		MaxBytes     int64    `yaml:"max_bytes"`
		AllowedTypes []string `yaml:"allowed_types"`
		// LinkTTL bounds how long a signed document URL stays valid.
		LinkTTL time.Duration `yaml:"link_ttl"`
	} `yaml:"uploads"`
	Sessions struct {
		Backend    string        `yaml:"backend"`
		TTL        time.Duration `yaml:"ttl"`
		HandoffTTL time.Duration `yaml:"handoff_ttl"`
		Redis      struct {
			Addr      string `yaml:"addr"`
			Password  string `yaml:"password"`
			DB        int    `yaml:"db"`
			KeyPrefix string `yaml:"key_prefix"`
		} `yaml:"redis"`
	} `yaml:"sessions"`
	Submission struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"submission"`
	FastTrack struct {
		Enabled bool             `yaml:"enabled"`
		Mock    MockBoardingPass `yaml:"mock"`
	} `yaml:"fast_track"`
	Phone struct {
		DefaultCountry string `yaml:"default_country"`
	} `yaml:"phone"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Auth     struct {
		DevLogin bool          `yaml:"dev_login"`
		TokenTTL time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
}

// MockBoardingPass is the extraction returned for every express upload.
type MockBoardingPass struct {
	Departure        string `yaml:"departure"`
	Arrival          string `yaml:"arrival"`
	FlightNumber     string `yaml:"flight_number"`
	Airline          string `yaml:"airline"`
	TravelDate       string `yaml:"travel_date"`
	BookingReference string `yaml:"booking_reference"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Events  []string      `yaml:"events"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
	Enabled *bool         `yaml:"enabled"`
}

var knownAllowedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with flightclaim config default > %s", path, path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("config.server.rate_limit.requests_per_minute must not be negative")
	}
	for name, raw := range map[string]string{
		"lookups.airports_url": c.Lookups.AirportsURL,
		"lookups.flights_url":  c.Lookups.FlightsURL,
		"server.public_url":    c.Server.PublicURL,
		"submission.url":       c.Submission.URL,
	} {
		if raw == "" {
			if name == "submission.url" {
				continue
			}
			return fmt.Errorf("config.%s is required", name)
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.%s must be an absolute URL", name)
		}
	}
	if c.Uploads.Dir == "" || c.Uploads.StagingDir == "" {
		return fmt.Errorf("config.uploads.dir and config.uploads.staging_dir are required")
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("config.uploads.max_bytes must be positive")
	}
	if c.Uploads.LinkTTL < 0 {
		return fmt.Errorf("config.uploads.link_ttl must not be negative")
	}
	for _, t := range c.Uploads.AllowedTypes {
		if !knownAllowedTypes[t] {
			return fmt.Errorf("config.uploads.allowed_types: %s is not a supported document type", t)
		}
	}
	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if c.Sessions.Redis.Addr == "" {
			return fmt.Errorf("config.sessions.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config.sessions.backend must be 'memory' or 'redis'")
	}
	if c.Sessions.TTL <= 0 || c.Sessions.HandoffTTL <= 0 {
		return fmt.Errorf("config.sessions.ttl and config.sessions.handoff_ttl must be positive")
	}
	if c.FastTrack.Enabled {
		m := c.FastTrack.Mock
		if m.Departure == "" || m.Arrival == "" {
			return fmt.Errorf("config.fast_track.mock needs departure and arrival")
		}
		if m.TravelDate != "" {
			if _, err := time.Parse(time.DateOnly, m.TravelDate); err != nil {
				return fmt.Errorf("config.fast_track.mock.travel_date must be YYYY-MM-DD")
			}
		}
	}
	if len(c.Phone.DefaultCountry) != 2 {
		return fmt.Errorf("config.phone.default_country must be an ISO 3166 alpha-2 code")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("config.webhooks[%d] has an empty event type", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "flightclaim.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from data keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  public_url: http://127.0.0.1:8080
  rate_limit:
    requests_per_minute: 120

log:
  level: info
  format: json

lookups:
  airports_url: http://127.0.0.1:9001
  flights_url: http://127.0.0.1:9002
  timeout: 10s
  cache_ttl: 10m

uploads:
  dir: .flightclaim/files
  staging_dir: .flightclaim/staging
  max_bytes: 10485760
  allowed_types: [image/jpeg, image/png, image/webp, application/pdf]
  link_ttl: 168h

sessions:
  backend: memory
  ttl: 2h
  handoff_ttl: 30m
  redis:
    addr: 127.0.0.1:6379
    db: 0
    key_prefix: "flightclaim:"

submission:
  timeout: 15s

fast_track:
  enabled: true
  mock:
    departure: LHR
    arrival: JFK
    flight_number: BA117
    airline: British Airways
    travel_date: "2024-05-01"
    booking_reference: ABC123

phone:
  default_country: GB

auth:
  dev_login: false
  token_ttl: 12h
`
