// Package config provides configuration structures and loading logic for the
// doodle gate service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values shared with the packages that consume them.
const (
	DefaultAddress        = ":8080"
	DefaultCanvasWidth    = 400
	DefaultCanvasHeight   = 300
	DefaultUndoCapacity   = 30
	DefaultLineWidth      = 6
	DefaultThreshold      = 0.60
	DefaultModelName      = "fish_doodle_classifier"
	DefaultAddressFile    = "contracts-address.json"
	DefaultHotCount       = 3
	DefaultFetchWorkers   = 4
	DefaultSessionIdleTTL = 30 * time.Minute
)

// DefaultIPFSGateways are tried in order when resolving ipfs:// URIs.
var DefaultIPFSGateways = []string{
	"https://gateway.pinata.cloud/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://ipfs.io/ipfs/",
}

// Config holds the global configuration for the service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Canvas    CanvasConfig    `yaml:"canvas"`
	Model     ModelConfig     `yaml:"model"`
	Storage   StorageConfig   `yaml:"storage"`
	Contracts ContractsConfig `yaml:"contracts"`
	Gallery   GalleryConfig   `yaml:"gallery"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Address        string        `yaml:"address"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`
}

// CanvasConfig holds the drawing surface settings.
type CanvasConfig struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	UndoCapacity int     `yaml:"undo_capacity"`
	LineWidth    float64 `yaml:"line_width"`
}

// ModelConfig points at the inference server hosting the doodle classifier.
type ModelConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	Name      string        `yaml:"name"`
	Timeout   time.Duration `yaml:"timeout"`
	Threshold float64       `yaml:"threshold"`
	// AllowCustomThreshold must be set to move the threshold away from the
	// value the model was calibrated against.
	AllowCustomThreshold bool `yaml:"allow_custom_threshold"`
}

// StorageConfig selects the client storage backend.
type StorageConfig struct {
	// Path of the SQLite database. Empty or ":memory:" selects the in-memory store.
	Path string `yaml:"path"`
}

// ContractsConfig locates the deployed contract address map.
type ContractsConfig struct {
	AddressFile string `yaml:"address_file"`
	Watch       bool   `yaml:"watch"`
}

// GalleryConfig tunes gallery loading.
type GalleryConfig struct {
	IPFSGateways     []string      `yaml:"ipfs_gateways"`
	HotCount         int           `yaml:"hot_count"`
	FetchConcurrency int           `yaml:"fetch_concurrency"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Environment  string `yaml:"environment"`
	Insecure     bool   `yaml:"insecure"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a configuration populated with defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        DefaultAddress,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			SessionIdleTTL: DefaultSessionIdleTTL,
		},
		Canvas: CanvasConfig{
			Width:        DefaultCanvasWidth,
			Height:       DefaultCanvasHeight,
			UndoCapacity: DefaultUndoCapacity,
			LineWidth:    DefaultLineWidth,
		},
		Model: ModelConfig{
			Name:      DefaultModelName,
			Timeout:   10 * time.Second,
			Threshold: DefaultThreshold,
		},
		Contracts: ContractsConfig{
			AddressFile: DefaultAddressFile,
		},
		Gallery: GalleryConfig{
			IPFSGateways:     append([]string(nil), DefaultIPFSGateways...),
			HotCount:         DefaultHotCount,
			FetchConcurrency: DefaultFetchWorkers,
			FetchTimeout:     10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "finverse",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("FINVERSE_ADDR"); val != "" {
		cfg.Server.Address = val
	}

	if val := os.Getenv("FINVERSE_MODEL_ENDPOINT"); val != "" {
		cfg.Model.Endpoint = val
	}
	if val := os.Getenv("FINVERSE_MODEL_NAME"); val != "" {
		cfg.Model.Name = val
	}

	if val := os.Getenv("FINVERSE_STORAGE_PATH"); val != "" {
		cfg.Storage.Path = val
	}

	if val := os.Getenv("FINVERSE_ADDRESS_FILE"); val != "" {
		cfg.Contracts.AddressFile = val
	}
	if val := os.Getenv("FINVERSE_WATCH_ADDRESSES"); val == "true" {
		cfg.Contracts.Watch = true
	}

	if val := os.Getenv("FINVERSE_IPFS_GATEWAYS"); val != "" {
		parts := strings.Split(val, ",")
		gateways := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				gateways = append(gateways, p)
			}
		}
		cfg.Gallery.IPFSGateways = gateways
	}
	if val := os.Getenv("FINVERSE_FETCH_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Gallery.FetchConcurrency = n
		}
	}

	if val := os.Getenv("FINVERSE_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("FINVERSE_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}

	if val := os.Getenv("FINVERSE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
}

// Validate performs validation of the entire configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}
	if err := c.Canvas.Validate(); err != nil {
		return fmt.Errorf("canvas configuration: %w", err)
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model configuration: %w", err)
	}
	if err := c.Contracts.Validate(); err != nil {
		return fmt.Errorf("contracts configuration: %w", err)
	}
	if err := c.Gallery.Validate(); err != nil {
		return fmt.Errorf("gallery configuration: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	return nil
}

// Validate performs validation of server configuration
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = DefaultAddress
	}
	if c.SessionIdleTTL <= 0 {
		c.SessionIdleTTL = DefaultSessionIdleTTL
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Validate performs validation of canvas configuration
func (c *CanvasConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("canvas dimensions must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.UndoCapacity <= 0 {
		c.UndoCapacity = DefaultUndoCapacity
	}
	if c.LineWidth <= 0 {
		c.LineWidth = DefaultLineWidth
	}
	return nil
}

// Validate performs validation of model configuration
func (c *ModelConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = DefaultModelName
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("threshold must be in (0, 1), got %v", c.Threshold)
	}
	if c.Threshold != DefaultThreshold && !c.AllowCustomThreshold {
		return fmt.Errorf("threshold %v differs from the calibrated %v; set allow_custom_threshold to override", c.Threshold, DefaultThreshold)
	}
	return nil
}

// Validate performs validation of contracts configuration
func (c *ContractsConfig) Validate() error {
	if strings.TrimSpace(c.AddressFile) == "" {
		c.AddressFile = DefaultAddressFile
	}
	return nil
}

// Validate performs validation of gallery configuration
func (c *GalleryConfig) Validate() error {
	if len(c.IPFSGateways) == 0 {
		c.IPFSGateways = append([]string(nil), DefaultIPFSGateways...)
	}
	for i, g := range c.IPFSGateways {
		if !strings.HasPrefix(g, "http://") && !strings.HasPrefix(g, "https://") {
			return fmt.Errorf("ipfs gateway %d (%q) must be an http(s) URL", i, g)
		}
		if !strings.HasSuffix(g, "/") {
			c.IPFSGateways[i] = g + "/"
		}
	}
	if c.HotCount < 0 {
		return fmt.Errorf("hot_count must not be negative")
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = DefaultFetchWorkers
	}
	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}
}
