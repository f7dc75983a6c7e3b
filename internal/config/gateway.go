// Package config loads the gateway's YAML configuration: adapters, frame
// schemas, routing rules, target systems and encryption keys, following
// the teacher's LoadConfig/applyEnvOverrides pattern in internal/config.
package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// GatewayConfig is the top-level gateway configuration document.
type GatewayConfig struct {
	Adapters []AdapterConfig  `yaml:"adapters"`
	Schemas  []SchemaConfig   `yaml:"schemas"`
	Rules    []RuleConfig     `yaml:"rules"`
	Targets  []TargetConfig   `yaml:"targets"`
	Keys     []EncryptionKey  `yaml:"keys"`
	Metrics  MetricsConfig    `yaml:"metrics"`
	Redis    RedisConfig      `yaml:"redis"`
}

// AdapterConfig describes one ingress adapter instance.
type AdapterConfig struct {
	Name           string   `yaml:"name"`
	Protocol       string   `yaml:"protocol"`
	SourceID       string   `yaml:"source_id"`
	Enabled        bool     `yaml:"enabled"`
	ListenAddress  string   `yaml:"listen_address"`
	ListenPort     int      `yaml:"listen_port"`
	BufferSize     int      `yaml:"buffer_size"`
	Endpoint       string   `yaml:"endpoint"`
	Method         string   `yaml:"method"`
	Path           string   `yaml:"path"`
	MaxConnections int      `yaml:"max_connections"`
	BrokerAddr     string   `yaml:"broker_address"`
	Topics         []string `yaml:"topics"`
	QoS            int      `yaml:"qos"`
	AutoParse      bool     `yaml:"auto_parse"`
	SchemaName     string   `yaml:"schema"`
}

// SchemaConfig is a frame schema import, per spec.md §6 (frame schema
// JSON import format, here in the YAML config document).
type SchemaConfig struct {
	Name         string        `yaml:"name"`
	Version      string        `yaml:"version"`
	FrameType    string        `yaml:"frame_type"`
	TotalLength  int           `yaml:"total_length"`
	HeaderLength int           `yaml:"header_length"`
	Delimiter    string        `yaml:"delimiter"`
	Fields       []FieldConfig `yaml:"fields"`
	Checksum     *ChecksumConfig `yaml:"checksum"`
}

type FieldConfig struct {
	Name        string   `yaml:"name"`
	Offset      int      `yaml:"offset"`
	Length      int      `yaml:"length"`
	DataType    string   `yaml:"data_type"`
	ByteOrder   string   `yaml:"byte_order"`
	Scale       *float64 `yaml:"scale"`
	OffsetValue *float64 `yaml:"offset_value"`
	Description string   `yaml:"description"`
}

type ChecksumConfig struct {
	Type   string `yaml:"type"`
	Offset int    `yaml:"offset"`
	Length int    `yaml:"length"`
}

// RuleConfig is a routing rule, per spec.md §3.
type RuleConfig struct {
	ID              string            `yaml:"id"`
	Name            string            `yaml:"name"`
	Priority        int               `yaml:"priority"`
	IsActive        bool              `yaml:"is_active"`
	IsPublished     bool              `yaml:"is_published"`
	SourceConfig    SourceConfigYAML  `yaml:"source_config"`
	Conditions      []ConditionConfig `yaml:"conditions"`
	LogicalOperator string            `yaml:"logical_operator"`
	TargetSystemIDs []string          `yaml:"target_system_ids"`
}

type SourceConfigYAML struct {
	Protocols []string `yaml:"protocols"`
	SourceIDs []string `yaml:"source_ids"`
	Pattern   string   `yaml:"pattern"`
}

type ConditionConfig struct {
	FieldPath string `yaml:"field_path"`
	Operator  string `yaml:"operator"`
	Value     any    `yaml:"value"`
}

// TargetConfig is a target system, per spec.md §3.
type TargetConfig struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	ProtocolType   string            `yaml:"protocol_type"`
	Address        string            `yaml:"address"`
	Port           int               `yaml:"port"`
	Path           string            `yaml:"path"`
	Topic          string            `yaml:"topic"`
	QoS            int               `yaml:"qos"`
	Retain         bool              `yaml:"retain"`
	IsActive       bool              `yaml:"is_active"`
	SchemaName     string            `yaml:"schema"`
	FieldMapping   map[string]string `yaml:"field_mapping"`
	AddFields      map[string]any    `yaml:"add_fields"`
	DropFields     []string          `yaml:"drop_fields"`
	Encrypt        bool              `yaml:"encrypt"`
	Timeout        int               `yaml:"timeout_sec"`
	MaxRetries     int               `yaml:"max_retries"`
	BatchSize      int               `yaml:"batch_size"`
	BatchWindowMS  int               `yaml:"batch_window_ms"`
	Auth           map[string]string `yaml:"auth"`
}

// EncryptionKey is a key record, per spec.md §3. SecretHex is the 32-byte
// key material hex-encoded for YAML transport.
type EncryptionKey struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	SecretHex string `yaml:"secret_hex"`
	IsActive  bool   `yaml:"is_active"`
}

// MetricsConfig configures the /metrics and health endpoints.
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address"`
	ListenPort    int    `yaml:"listen_port"`
}

// RedisConfig configures the optional cross-instance mirroring of
// METRICS_* and ERROR_OCCURRED bus topics.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// LoadGatewayConfig loads a GatewayConfig document from path, applying
// environment overrides for the metrics listener address.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg GatewayConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return &cfg, nil
}

func (c *GatewayConfig) applyEnvOverrides() {
	c.Metrics.ListenAddress = getEnv("GATEWAY_METRICS_ADDRESS", c.Metrics.ListenAddress)
	c.Metrics.ListenPort = getEnvInt("GATEWAY_METRICS_PORT", c.Metrics.ListenPort)
	c.Redis.Addr = getEnv("GATEWAY_REDIS_ADDR", c.Redis.Addr)
}
