// Package configuration loads the example client configuration: defaults, then an optional
// YAML file, then environment variables.
package configuration

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadConfiguration
const (
	EnvConfigFile      = "WSNODE_EX_CONFIG_FILE"
	EnvServerUrl       = "WSNODE_EX_SERVER_URL"
	EnvTransport       = "WSNODE_EX_TRANSPORT"
	EnvMaskingKey      = "WSNODE_EX_MASKING_KEY"
	EnvTracingEnabled  = "WSNODE_EX_TRACING_ENABLED"
	EnvTracingEndpoint = "WSNODE_EX_TRACING_ENDPOINT"
)

// Transports which can be used by the example client
const (
	// TCP socket, with TLS for wss destinations
	TransportNetwork = "network"
	// In-memory echo server, no network access
	TransportLoopback = "loopback"
)

// Example client configuration
type Configuration struct {
	// URL of the target websocket server (ws:// or wss://)
	ServerUrl string `yaml:"server_url" validate:"required"`
	// Transport used below the websocket node
	Transport string `yaml:"transport" validate:"oneof=network loopback"`
	// Fixed masking key (4 ASCII characters). Random masking keys are used when empty.
	MaskingKey string `yaml:"masking_key" validate:"omitempty,ascii,len=4"`
	// Skip server certificate verification for wss destinations
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
	// Indicates whether tracing is enabled or not
	TracingEnabled bool `yaml:"tracing_enabled"`
	// OTLP HTTP endpoint (host:port) of the tracing backend
	TracingEndpoint string `yaml:"tracing_endpoint" validate:"required_if=TracingEnabled true"`
}

// # Description
//
// Load the configuration.
//
// Defaults are used first. If WSNODE_EX_CONFIG_FILE is set, the YAML file it points to is
// decoded over the defaults. Finally, environment variables which are set override the values.
//
// # Returns
//
// The validated configuration or an error if the file cannot be read or decoded, if an
// environment variable is malformed or if the configuration is invalid.
func LoadConfiguration() (Configuration, error) {
	config := Configuration{
		ServerUrl:       "ws://localhost:8081/",
		Transport:       TransportNetwork,
		TracingEndpoint: "localhost:4318",
	}
	// YAML file
	if path := os.Getenv(EnvConfigFile); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Configuration{}, fmt.Errorf("failed to read configuration file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &config); err != nil {
			return Configuration{}, fmt.Errorf("failed to decode configuration file %s: %w", path, err)
		}
	}
	// Environment
	if value, ok := os.LookupEnv(EnvServerUrl); ok {
		config.ServerUrl = value
	}
	if value, ok := os.LookupEnv(EnvTransport); ok {
		config.Transport = value
	}
	if value, ok := os.LookupEnv(EnvMaskingKey); ok {
		config.MaskingKey = value
	}
	if value, ok := os.LookupEnv(EnvTracingEnabled); ok {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Configuration{}, fmt.Errorf("invalid value for %s: %w", EnvTracingEnabled, err)
		}
		config.TracingEnabled = enabled
	}
	if value, ok := os.LookupEnv(EnvTracingEndpoint); ok {
		config.TracingEndpoint = value
	}
	// Validate
	if err := validator.New().Struct(config); err != nil {
		return Configuration{}, err
	}
	return config, nil
}

// MaskingKeyBytes returns the fixed masking key and true if one is configured.
func (config Configuration) MaskingKeyBytes() ([4]byte, bool) {
	var key [4]byte
	if len(config.MaskingKey) != len(key) {
		return key, false
	}
	copy(key[:], config.MaskingKey)
	return key, true
}
