package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/plantdata-gw/internal/auth"
	"github.com/mattjoyce/plantdata-gw/internal/inspection"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, defaults, verifies and validates a config file.
// A directory argument is resolved to config.yaml inside it.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in %s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	applyConfigDefaults(cfg)

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath turns a file or directory argument into an absolute config file path.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// verifyConfigHash checks path against the .checksums manifest next to it.
// A missing manifest skips verification.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		return nil
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: plantdata-gw config lock --config %s", basename, dir, path)
	}
	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: plantdata-gw config lock --config %s", path, err, path)
	}
	return nil
}

// applyConfigDefaults fills values that YAML explicitly zeroed.
func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.ShutdownGrace <= 0 {
		cfg.Service.ShutdownGrace = defaults.Service.ShutdownGrace
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.Dispatch.EventBuffer <= 0 {
		cfg.Dispatch.EventBuffer = defaults.Dispatch.EventBuffer
	}
	if cfg.NATS.ResultSubject == "" {
		cfg.NATS.ResultSubject = defaults.NATS.ResultSubject
	}
	if cfg.NATS.ValueSubject == "" {
		cfg.NATS.ValueSubject = defaults.NATS.ValueSubject
	}
	if cfg.NATS.ReconnectWait <= 0 {
		cfg.NATS.ReconnectWait = defaults.NATS.ReconnectWait
	}
	if cfg.Workflow.Timeout <= 0 {
		cfg.Workflow.Timeout = defaults.Workflow.Timeout
	}
	if cfg.Timeseries.Table == "" {
		cfg.Timeseries.Table = defaults.Timeseries.Table
	}
	if cfg.Webhooks != nil {
		for i := range cfg.Webhooks.Endpoints {
			if cfg.Webhooks.Endpoints[i].SignatureHeader == "" {
				cfg.Webhooks.Endpoints[i].SignatureHeader = "X-Signature-256"
			}
		}
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// checkResolved fails if value still carries a ${VAR} placeholder.
func checkResolved(field, value string) error {
	matches := envVarPattern.FindStringSubmatch(value)
	if len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if err := checkResolved("state.path", cfg.State.Path); err != nil {
		return err
	}

	if cfg.Dispatch.HandlerTimeout < 0 {
		return fmt.Errorf("dispatch.handler_timeout must not be negative")
	}

	if cfg.API.Enabled {
		if err := checkResolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth: api_key or tokens required when api is enabled")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			field := fmt.Sprintf("api.auth.tokens[%d]", i)
			if tok.Token == "" {
				return fmt.Errorf("%s.token is required", field)
			}
			if err := checkResolved(field+".token", tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("%s.scopes must be non-empty", field)
			}
		}
		if _, err := auth.NewAuthenticator(cfg.API.Auth.APIKey, cfg.API.Auth.TokenConfigs()); err != nil {
			return fmt.Errorf("api.auth.%w", err)
		}
	}

	if cfg.NATS.Enabled {
		if cfg.NATS.URL == "" {
			return fmt.Errorf("nats.url is required when nats is enabled")
		}
		if err := checkResolved("nats.token", cfg.NATS.Token); err != nil {
			return err
		}
	}

	if cfg.Webhooks != nil {
		if cfg.Webhooks.Listen == "" {
			return fmt.Errorf("webhooks.listen is required")
		}
		seen := make(map[string]bool)
		for i, ep := range cfg.Webhooks.Endpoints {
			field := fmt.Sprintf("webhooks.endpoints[%d]", i)
			if !strings.HasPrefix(ep.Path, "/") {
				return fmt.Errorf("%s.path must start with /", field)
			}
			if seen[ep.Path] {
				return fmt.Errorf("%s.path %q is duplicated", field, ep.Path)
			}
			seen[ep.Path] = true
			if ep.Topic != inspection.TopicResult && ep.Topic != inspection.TopicValue {
				return fmt.Errorf("%s.topic must be %q or %q (got %q)", field, inspection.TopicResult, inspection.TopicValue, ep.Topic)
			}
			if ep.Secret == "" {
				return fmt.Errorf("%s.secret is required", field)
			}
			if err := checkResolved(field+".secret", ep.Secret); err != nil {
				return err
			}
		}
	}

	if cfg.Workflow.BaseURL == "" {
		return fmt.Errorf("workflow.base_url is required")
	}
	if err := checkResolved("workflow.base_url", cfg.Workflow.BaseURL); err != nil {
		return err
	}
	if u, err := url.Parse(cfg.Workflow.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("workflow.base_url must be an absolute http(s) URL (got %q)", cfg.Workflow.BaseURL)
	}
	if err := checkResolved("workflow.token", cfg.Workflow.Token); err != nil {
		return err
	}

	if cfg.Timeseries.DSN == "" {
		return fmt.Errorf("timeseries.dsn is required")
	}
	if err := checkResolved("timeseries.dsn", cfg.Timeseries.DSN); err != nil {
		return err
	}

	for i, rule := range cfg.Analysis.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("analysis.rules[%d]: %w", i, err)
		}
	}
	return nil
}
