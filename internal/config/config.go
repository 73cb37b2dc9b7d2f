package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig   `toml:"server"`   // HTTP server settings
	Logging  LoggingConfig  `toml:"logging"`  // Application logging settings
	Stations StationsConfig `toml:"stations"` // Tracked airports and their grouping
	Display  DisplayConfig  `toml:"display"`  // Display constants passed through to clients
	METAR    METARConfig    `toml:"metar"`    // METAR feed settings
	ATIS     ATISConfig     `toml:"atis"`     // ATIS feed settings
	MQTT     MQTTConfig     `toml:"mqtt"`     // Optional MQTT publishing of station changes

	Path string `toml:"-"` // File the configuration was loaded from, empty for built-in defaults
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, needed for websocket streams)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StationsConfig lists the tracked airports
type StationsConfig struct {
	Groups         [][]string        `toml:"groups"`          // ICAO codes, grouped as they are displayed
	CategoryColors map[string]string `toml:"category_colors"` // Flight category -> color; "None" is used for unknown
}

// DisplayConfig holds presentation constants. The server does not use them itself.
type DisplayConfig struct {
	FontFamily string `toml:"font_family"`
	FontSize   int    `toml:"font_size"`
}

// METARConfig contains METAR feed settings
type METARConfig struct {
	BaseURL               string `toml:"base_url"`                // Feed base URL; identifiers are appended as a comma-joined path segment
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"` // HTTP timeout for a single fetch
}

// ATISConfig contains ATIS feed settings
type ATISConfig struct {
	URL                    string `toml:"url"`                      // Bulk ATIS JSON feed
	RefreshIntervalSeconds int    `toml:"refresh_interval_seconds"` // Fixed refresh interval
	RequestTimeoutSeconds  int    `toml:"request_timeout_seconds"`  // HTTP timeout for a single fetch
}

// MQTTConfig contains MQTT publisher settings
type MQTTConfig struct {
	Enabled     bool   `toml:"enabled"`      // Publish change notifications to an MQTT broker
	Broker      string `toml:"broker"`       // Broker host name
	Port        int    `toml:"port"`         // Broker port
	ClientID    string `toml:"client_id"`    // MQTT client identifier
	TopicPrefix string `toml:"topic_prefix"` // Prefix for <prefix>/events and <prefix>/stations/<ICAO>
	QoS         int    `toml:"qos"`          // Publish QoS (0, 1 or 2)
}

// Default returns the built-in configuration. Values read from a file are
// merged over it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:               8080,
			Host:               "127.0.0.1",
			CORSAllowedOrigins: []string{"*"},
			ReadTimeoutSecs:    15,
			WriteTimeoutSecs:   0,
			IdleTimeoutSecs:    60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Stations: StationsConfig{
			Groups: [][]string{
				{"EPWA", "EPMO", "EPLL", "EPRA"},
				{"EPKK", "EPKT"},
				{"EPPO", "EPWR"},
				{"EPGD", "EPBY"},
				{"EPSC", "EPSY", "EPLB", "EPRZ"},
			},
			CategoryColors: map[string]string{
				"VFR":  "#0b4136",
				"SVFR": "#ffd600",
				"IFR":  "#ff1744",
				"None": "#9e9e9e",
			},
		},
		Display: DisplayConfig{
			FontFamily: "Consolas",
			FontSize:   8,
		},
		METAR: METARConfig{
			BaseURL:               "https://metar.vatsim.net",
			RequestTimeoutSeconds: 15,
		},
		ATIS: ATISConfig{
			URL:                    "https://data.vatsim.net/v3/afv-atis-data.json",
			RefreshIntervalSeconds: 300,
			RequestTimeoutSeconds:  15,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "localhost",
			Port:        1883,
			ClientID:    "metarboard",
			TopicPrefix: "metarboard",
			QoS:         0,
		},
	}
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	config := Default()

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file over the defaults
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	config.Path = path

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in
// order of preference. When none exists the built-in defaults are used.
// An explicitly requested file that is missing is an error.
func LoadWithFallback(preferredPath string) (*Config, error) {
	if preferredPath != "" {
		if _, err := os.Stat(preferredPath); err != nil {
			return nil, fmt.Errorf("config file not found: %s", preferredPath)
		}
		return Load(preferredPath)
	}

	// List of paths to check in order of preference
	searchPaths := []string{
		"configs/config.toml",
		"config.toml",
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
			}
			return config, nil
		}
	}

	config := Default()
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnv loads .env if present and applies environment overrides
func (c *Config) applyEnv() error {
	_ = godotenv.Load(".env")

	if v := strings.TrimSpace(os.Getenv("METARBOARD_METAR_BASE_URL")); v != "" {
		c.METAR.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("METARBOARD_ATIS_URL")); v != "" {
		c.ATIS.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("METARBOARD_LOG_LEVEL")); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("METARBOARD_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid METARBOARD_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := strings.TrimSpace(os.Getenv("METARBOARD_MQTT_BROKER")); v != "" {
		c.MQTT.Broker = v
		c.MQTT.Enabled = true
	}
	return nil
}

// AllStations returns every tracked identifier in display order
func (c *Config) AllStations() []string {
	var out []string
	for _, group := range c.Stations.Groups {
		out = append(out, group...)
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.ValidateStations(); err != nil {
		return err
	}

	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must be 0 or greater")
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Validate feeds
	if c.METAR.BaseURL == "" {
		return fmt.Errorf("metar base_url cannot be empty")
	}
	if c.METAR.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("metar request_timeout_seconds must be greater than 0")
	}
	if c.ATIS.URL == "" {
		return fmt.Errorf("atis url cannot be empty")
	}
	if c.ATIS.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("atis refresh_interval_seconds must be greater than 0")
	}
	if c.ATIS.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("atis request_timeout_seconds must be greater than 0")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker is required when mqtt is enabled")
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			return fmt.Errorf("invalid mqtt port: %d", c.MQTT.Port)
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("invalid mqtt qos: %d (must be 0, 1 or 2)", c.MQTT.QoS)
		}
	}

	return nil
}

// ValidateStations validates the tracked identifiers
func (c *Config) ValidateStations() error {
	if len(c.AllStations()) == 0 {
		return fmt.Errorf("at least one station must be configured")
	}

	seen := make(map[string]bool)
	for i, group := range c.Stations.Groups {
		for _, icao := range group {
			if !isICAO(icao) {
				return fmt.Errorf("group #%d: invalid ICAO identifier %q (expected 4 uppercase letters or digits)", i+1, icao)
			}
			if seen[icao] {
				return fmt.Errorf("group #%d: duplicate ICAO identifier: %s", i+1, icao)
			}
			seen[icao] = true
		}
	}
	return nil
}

func isICAO(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
