package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration: the two bus-tracker feed URLs,
// the published snapshot path, and the static GTFS acquisition settings.
type Config struct {
	DeparturesURL string        `yaml:"departures_url" validate:"required,url"`
	VehiclesURL   string        `yaml:"vehicles_url" validate:"required,url"`
	OutputPath    string        `yaml:"output_path" validate:"required"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Timezone      string        `yaml:"timezone" validate:"required"`

	GTFSURL string `yaml:"gtfs_url" validate:"omitempty,url"`
	GTFSDir string `yaml:"gtfs_dir"`
	DBPath  string `yaml:"db_path" validate:"required"`

	DeadheadRoute string        `yaml:"deadhead_route"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`

	MetricsAddr string `yaml:"metrics_addr"`
	NATSURL     string `yaml:"nats_url" validate:"omitempty,url"`
	NATSSubject string `yaml:"nats_subject"`
}

// Load reads the YAML config at path, applies environment-variable overrides,
// fills defaults, and validates the result. A missing file is not an error as
// long as the environment carries the required values.
func Load(path string) (*Config, error) {
	cfg := &Config{
		OutputPath:    "people_mover.pb",
		PollInterval:  20 * time.Second,
		Timezone:      "America/Anchorage",
		GTFSDir:       "./data",
		DBPath:        "./gtfs.db",
		DeadheadRoute: "99",
		FetchTimeout:  15 * time.Second,
		NATSSubject:   "gtfsrt.snapshot",
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// fall through to env overrides
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(cfg)

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return cfg, nil
}

// Location resolves the configured timezone. Load has already verified it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func applyEnv(cfg *Config) {
	envStr("XML2PB_DEPARTURES_URL", &cfg.DeparturesURL)
	envStr("XML2PB_VEHICLES_URL", &cfg.VehiclesURL)
	envStr("XML2PB_OUTPUT", &cfg.OutputPath)
	envDur("XML2PB_POLL_INTERVAL", &cfg.PollInterval)
	envStr("XML2PB_TZ", &cfg.Timezone)
	envStr("XML2PB_GTFS_URL", &cfg.GTFSURL)
	envStr("XML2PB_GTFS_DIR", &cfg.GTFSDir)
	envStr("XML2PB_DB_PATH", &cfg.DBPath)
	envStr("XML2PB_DEADHEAD_ROUTE", &cfg.DeadheadRoute)
	envDur("XML2PB_FETCH_TIMEOUT", &cfg.FetchTimeout)
	envStr("XML2PB_METRICS_ADDR", &cfg.MetricsAddr)
	envStr("XML2PB_NATS_URL", &cfg.NATSURL)
	envStr("XML2PB_NATS_SUBJECT", &cfg.NATSSubject)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envDur(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
