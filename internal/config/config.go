package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/moroshma/jstail/pkg/timewindow"
)

// Config represents the application configuration
type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Vault   VaultConfig   `yaml:"vault"`
	Logger  LoggerConfig  `yaml:"logger"`
}

// BrokerConfig represents the NATS connection and the trace stream layout
type BrokerConfig struct {
	Address        string        `yaml:"address" envconfig:"NATS_ADDRESS"`
	Name           string        `yaml:"name" envconfig:"NATS_CLIENT_NAME"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait" envconfig:"NATS_RECONNECT_WAIT"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"NATS_CONNECT_TIMEOUT"`
	// BufferSize is the per-consumer message buffer between the client and the pump.
	BufferSize int `yaml:"buffer_size" envconfig:"NATS_BUFFER_SIZE"`

	TraceStream         string        `yaml:"trace_stream" envconfig:"TRACE_STREAM"`
	TraceRoot           string        `yaml:"trace_root" envconfig:"TRACE_ROOT"`
	StreamPollInterval  time.Duration `yaml:"stream_poll_interval" envconfig:"STREAM_POLL_INTERVAL"`
	ConsumerDescription string        `yaml:"consumer_description" envconfig:"CONSUMER_DESCRIPTION"`

	// Vault path for the broker address and trace stream (optional)
	VaultPath string `yaml:"vault_path" envconfig:"NATS_VAULT_PATH"`
}

// ServerConfig represents the listeners of `jstail serve`
type ServerConfig struct {
	HTTPPort int `yaml:"http_port" envconfig:"HTTP_PORT"`
	GRPCPort int `yaml:"grpc_port" envconfig:"GRPC_PORT"`
}

// SessionConfig represents the consumer session defaults
type SessionConfig struct {
	Window         string `yaml:"window" envconfig:"SESSION_WINDOW"`
	StrictSubjects bool   `yaml:"strict_subjects" envconfig:"STRICT_SUBJECTS"`
	EventBuffer    int    `yaml:"event_buffer" envconfig:"EVENT_BUFFER"`
	QueueSize      int    `yaml:"queue_size" envconfig:"COMMAND_QUEUE_SIZE"`
}

// VaultConfig represents HashiCorp Vault configuration
type VaultConfig struct {
	Enabled   bool   `yaml:"enabled" envconfig:"VAULT_ENABLED"`
	Address   string `yaml:"address" envconfig:"VAULT_ADDR"`
	Token     string `yaml:"token" envconfig:"VAULT_TOKEN"`
	TokenPath string `yaml:"token_path" envconfig:"VAULT_TOKEN_PATH"`
	Namespace string `yaml:"namespace" envconfig:"VAULT_NAMESPACE"`
}

// LoggerConfig represents logger configuration
type LoggerConfig struct {
	Level      string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format     string `yaml:"format" envconfig:"LOG_FORMAT"` // json or console
	OutputPath string `yaml:"output_path" envconfig:"LOG_OUTPUT_PATH"`
}

// Default returns the configuration used for every value that neither the
// file nor the environment sets.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Address:             "nats://localhost:4222",
			Name:                "jstail",
			ReconnectWait:       5 * time.Second,
			ConnectTimeout:      2 * time.Second,
			BufferSize:          256,
			TraceStream:         "Tracing",
			TraceRoot:           "Tracing",
			StreamPollInterval:  500 * time.Millisecond,
			ConsumerDescription: "jstail debug consumer",
		},
		Server: ServerConfig{
			HTTPPort: 8080,
			GRPCPort: 50051,
		},
		Session: SessionConfig{
			Window:      timewindow.Live,
			EventBuffer: 1024,
			QueueSize:   64,
		},
		Vault: VaultConfig{
			Address: "http://localhost:8200",
		},
		Logger: LoggerConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}

// Load loads configuration from file and environment variables
// Environment variables take precedence over file configuration
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Only variables that are set override; there are no default tags.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true) // Strict parsing

	if err := decoder.Decode(cfg); err != nil {
		return err
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Broker.TraceStream == "" {
		return fmt.Errorf("trace stream is required")
	}

	if c.Broker.TraceRoot == "" || strings.ContainsAny(c.Broker.TraceRoot, "*> ") {
		return fmt.Errorf("invalid trace root: %q", c.Broker.TraceRoot)
	}

	if c.Broker.ConsumerDescription == "" {
		return fmt.Errorf("consumer description is required")
	}

	if c.Broker.ReconnectWait <= 0 {
		return fmt.Errorf("reconnect wait must be positive: %s", c.Broker.ReconnectWait)
	}

	if c.Broker.StreamPollInterval <= 0 {
		return fmt.Errorf("stream poll interval must be positive: %s", c.Broker.StreamPollInterval)
	}

	if c.Broker.BufferSize <= 0 {
		return fmt.Errorf("invalid buffer size: %d", c.Broker.BufferSize)
	}

	if err := validPort("http", c.Server.HTTPPort); err != nil {
		return err
	}

	if err := validPort("grpc", c.Server.GRPCPort); err != nil {
		return err
	}

	if _, err := timewindow.Parse(c.Session.Window); err != nil {
		return err
	}

	if c.Session.EventBuffer <= 0 {
		return fmt.Errorf("invalid event buffer: %d", c.Session.EventBuffer)
	}

	if c.Session.QueueSize <= 0 {
		return fmt.Errorf("invalid command queue size: %d", c.Session.QueueSize)
	}

	if c.Vault.Enabled && c.Vault.Address == "" {
		return fmt.Errorf("vault address is required when vault is enabled")
	}

	return nil
}

func validPort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid %s port: %d", name, port)
	}
	return nil
}

// GetVaultToken returns the Vault token from config or file
func (c *VaultConfig) GetVaultToken() (string, error) {
	if c.Token != "" {
		return c.Token, nil
	}

	if c.TokenPath != "" {
		token, err := os.ReadFile(c.TokenPath)
		if err != nil {
			return "", fmt.Errorf("failed to read vault token from file: %w", err)
		}
		return strings.TrimSpace(string(token)), nil
	}

	return "", fmt.Errorf("vault token not configured")
}
