package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the merger's runtime settings, loaded from environment.
// Call LoadEnvFile(".env") before Load() to use a .env file.
type Config struct {
	UDPAddr     string // UDP ingest bind address, e.g. :5678
	TCPAddr     string // TCP viewer bind address, e.g. :5679
	MetricsAddr string // HTTP bind address for /metrics, /healthz, /readyz

	PCRPID uint16 // PID treated as the PCR clock

	StationTimeout time.Duration // station liveness timeout
	GuardWindow    time.Duration // segment-boundary guard window
	ViewerTimeout  time.Duration // idle viewer disconnect timeout
	MaxViewers     int           // concurrent viewer cap

	StationsFile string // optional YAML file of expected callsigns (logging only)

	Tick time.Duration // driver poll/tick interval
}

// Load reads config from environment.
func Load() *Config {
	c := &Config{
		UDPAddr:        getEnv("TSMERGE_UDP_ADDR", ":5678"),
		TCPAddr:        getEnv("TSMERGE_TCP_ADDR", ":5679"),
		MetricsAddr:    getEnv("TSMERGE_METRICS_ADDR", ":9600"),
		PCRPID:         uint16(getEnvInt("TSMERGE_PCR_PID", 256)),
		StationTimeout: getEnvDuration("TSMERGE_STATION_TIMEOUT", 10*time.Second),
		GuardWindow:    getEnvDuration("TSMERGE_GUARD_WINDOW", time.Second),
		ViewerTimeout:  getEnvDuration("TSMERGE_VIEWER_TIMEOUT", 60*time.Second),
		MaxViewers:     getEnvInt("TSMERGE_MAX_VIEWERS", 10),
		StationsFile:   os.Getenv("TSMERGE_STATIONS_FILE"),
		Tick:           getEnvDuration("TSMERGE_TICK", 10*time.Millisecond),
	}
	if c.MaxViewers <= 0 {
		c.MaxViewers = 10
	}
	if c.Tick <= 0 {
		c.Tick = 10 * time.Millisecond
	}
	return c
}

// stationsFile is the shape of TSMERGE_STATIONS_FILE.
type stationsFile struct {
	Stations []struct {
		Callsign string `yaml:"callsign"`
	} `yaml:"stations"`
}

// KnownCallsigns parses StationsFile, if set, into a set of expected
// callsigns. It never blocks auto-learning of stations that aren't in the
// set (spec.md §3) — callers use the result only to decide whether to log
// an "undeclared station" warning on first sight of a new callsign.
func (c *Config) KnownCallsigns() (map[string]bool, error) {
	if c.StationsFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.StationsFile)
	if err != nil {
		return nil, fmt.Errorf("stations file: %w", err)
	}
	var sf stationsFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("stations file: %w", err)
	}
	known := make(map[string]bool, len(sf.Stations))
	for _, s := range sf.Stations {
		cs := strings.TrimSpace(s.Callsign)
		if cs != "" {
			known[cs] = true
		}
	}
	return known, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
