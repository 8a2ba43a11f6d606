package config

import (
	"time"

	"github.com/mattjoyce/plantdata-gw/internal/analysis"
	"github.com/mattjoyce/plantdata-gw/internal/auth"
)

// Config represents the complete plantdata-gw configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	State      StateConfig      `yaml:"state"`
	API        APIConfig        `yaml:"api,omitempty"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	NATS       NATSConfig       `yaml:"nats,omitempty"`
	Webhooks   *WebhooksConfig  `yaml:"webhooks,omitempty"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Timeseries TimeseriesConfig `yaml:"timeseries"`
	Analysis   AnalysisConfig   `yaml:"analysis"`

	// SourcePath is the absolute path of the loaded file.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name          string        `yaml:"name"`
	LogLevel      string        `yaml:"log_level"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// StateConfig defines where the SQLite state database lives.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines the operator HTTP API.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes, e.g. "inspections:ro",
// "mappings:rw" or "*".
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// TokenConfigs converts the configured tokens for the API authenticator.
func (a APIAuthConfig) TokenConfigs() []auth.TokenConfig {
	out := make([]auth.TokenConfig, 0, len(a.Tokens))
	for _, t := range a.Tokens {
		out = append(out, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return out
}

// DispatchConfig tunes the event dispatcher.
type DispatchConfig struct {
	// StrictDedupe collapses the exists/create pair into one atomic insert.
	StrictDedupe   bool          `yaml:"strict_dedupe"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
	EventBuffer    int           `yaml:"event_buffer"`
}

// NATSConfig defines the NATS ingress.
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token,omitempty"`
	ResultSubject string        `yaml:"result_subject"`
	ValueSubject  string        `yaml:"value_subject"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// WebhooksConfig defines webhook listener settings.
type WebhooksConfig struct {
	Listen    string            `yaml:"listen"`
	Endpoints []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookEndpoint binds one HTTP path to a bus topic.
type WebhookEndpoint struct {
	Path            string `yaml:"path"`
	Topic           string `yaml:"topic"`
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
	MaxBodySize     string `yaml:"max_body_size"`
}

// WorkflowConfig points at the analysis workflow service.
type WorkflowConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// TimeseriesConfig points at the TimescaleDB value store.
type TimeseriesConfig struct {
	DSN         string `yaml:"dsn"`
	Table       string `yaml:"table"`
	CreateTable bool   `yaml:"create_table"`
}

// AnalysisConfig seeds the tag-analysis mapping table.
type AnalysisConfig struct {
	Rules []analysis.Rule `yaml:"rules"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:          "plantdata-gw",
			LogLevel:      "info",
			ShutdownGrace: 10 * time.Second,
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Dispatch: DispatchConfig{
			HandlerTimeout: 30 * time.Second,
			EventBuffer:    256,
		},
		NATS: NATSConfig{
			ResultSubject: "isar.*.inspection_result",
			ValueSubject:  "isar.*.inspection_value",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Workflow: WorkflowConfig{
			Timeout: 30 * time.Second,
		},
		Timeseries: TimeseriesConfig{
			Table: "inspection_values",
		},
	}
}
