// Copyright 2025 SQLGate Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the gateway's YAML configuration.
// The file is read once at startup; the resulting structures are
// immutable for the process lifetime. Environment variables may be
// referenced as ${VAR_NAME} or ${VAR_NAME:-default} anywhere in the
// file, which keeps credentials out of the file itself.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sqlgate/platform/connectors/base"
	"sqlgate/platform/gateway/policy"
	"sqlgate/platform/gateway/pool"
	"sqlgate/platform/gateway/sanitize"
)

// File is the root of the configuration file.
type File struct {
	Version   string                   `yaml:"version"`
	Server    ServerConfig             `yaml:"server"`
	Backends  map[string]BackendConfig `yaml:"backends"`
	Policy    PolicyConfig             `yaml:"policy"`
	Sanitize  SanitizeConfig           `yaml:"sanitize"`
	Audit     AuditConfig              `yaml:"audit"`
	RateLimit RateLimitConfig          `yaml:"ratelimit"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddr      string   `yaml:"listen_addr"`
	CORSOrigins     []string `yaml:"cors_origins"`
	ShutdownGraceMs int      `yaml:"shutdown_grace_ms"`
}

// BackendConfig describes one governed backend and its pool. The map
// key in the file is the backend's logical name.
type BackendConfig struct {
	Kind              string            `yaml:"kind"`
	Enabled           bool              `yaml:"enabled"`
	Host              string            `yaml:"host"`
	Port              int               `yaml:"port"`
	Database          string            `yaml:"database"`
	User              string            `yaml:"user"`
	Password          string            `yaml:"password"`
	Options           map[string]string `yaml:"options"`
	MaxQueryTimeoutMs int               `yaml:"max_query_timeout_ms"`
	Pool              PoolConfig        `yaml:"pool"`
}

// PoolConfig sizes one backend's connection pool.
type PoolConfig struct {
	MinSize          int `yaml:"min_size"`
	MaxSize          int `yaml:"max_size"`
	AcquireTimeoutMs int `yaml:"acquire_timeout_ms"`
	IdleTTLMs        int `yaml:"idle_ttl_ms"`
}

// PolicyConfig configures the query validator.
type PolicyConfig struct {
	ReadOnly           *bool    `yaml:"read_only"`
	MutatingKeywords   []string `yaml:"mutating_keywords"`
	ProcedureAllowList []string `yaml:"procedure_allow_list"`
}

// SanitizeConfig configures result masking and size caps.
type SanitizeConfig struct {
	MaxRows          int          `yaml:"max_rows"`
	MaxBytes         int          `yaml:"max_bytes"`
	SensitiveColumns []ColumnRule `yaml:"sensitive_columns"`
}

// ColumnRule marks one column as sensitive.
type ColumnRule struct {
	Column     string `yaml:"column"`
	Mode       string `yaml:"mode"`
	KeepSuffix int    `yaml:"keep_suffix"`
}

// AuditConfig selects the audit sink. DatabaseURL takes precedence;
// otherwise records go to FilePath.
type AuditConfig struct {
	DatabaseURL  string `yaml:"database_url"`
	FilePath     string `yaml:"file_path"`
	FallbackPath string `yaml:"fallback_path"`
	QueueSize    int    `yaml:"queue_size"`
	Workers      int    `yaml:"workers"`
}

// RateLimitConfig configures per-caller request limits.
type RateLimitConfig struct {
	RedisURL  string `yaml:"redis_url"`
	PerMinute int    `yaml:"per_minute"`
}

// validKinds maps accepted backend kinds to the canonical adapter
// kind. Azure SQL speaks the SQL Server protocol.
var validKinds = map[string]string{
	"postgres":  "postgres",
	"mysql":     "mysql",
	"sqlserver": "sqlserver",
	"azure":     "sqlserver",
	"snowflake": "snowflake",
	"hana":      "hana",
}

const (
	defaultMaxRows         = 10000
	defaultMaxBytes        = 4 << 20
	defaultAcquireTimeout  = 5 * time.Second
	defaultIdleTTL         = 5 * time.Minute
	defaultMaxPoolSize     = 10
	defaultListenAddr      = ":8080"
	defaultShutdownGrace   = 10 * time.Second
	defaultAuditFile       = "sqlgate_audit.ndjson"
	defaultAuditFallback   = "sqlgate_audit_fallback.ndjson"
)

// Load reads, expands and validates the configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates configuration from raw YAML bytes.
func Parse(data []byte) (*File, error) {
	expanded := expandEnvVars(string(data))

	var f File
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	if f.Version == "" {
		return fmt.Errorf("config must specify a version")
	}
	if len(f.EnabledBackends()) == 0 {
		return fmt.Errorf("config must enable at least one backend")
	}

	for name, b := range f.Backends {
		if !b.Enabled {
			continue
		}
		if _, ok := validKinds[b.Kind]; !ok {
			return fmt.Errorf("backend %q has unsupported kind %q", name, b.Kind)
		}
		if b.Host == "" {
			return fmt.Errorf("backend %q must specify a host", name)
		}
		if b.Pool.MinSize < 0 || (b.Pool.MaxSize > 0 && b.Pool.MinSize > b.Pool.MaxSize) {
			return fmt.Errorf("backend %q pool min_size %d outside [0, %d]",
				name, b.Pool.MinSize, b.Pool.MaxSize)
		}
	}

	for _, rule := range f.Sanitize.SensitiveColumns {
		if rule.Column == "" {
			return fmt.Errorf("sensitive column rule missing column name")
		}
		if !sanitize.MaskMode(rule.Mode).IsValid() {
			return fmt.Errorf("sensitive column %q has unknown mode %q", rule.Column, rule.Mode)
		}
	}

	return nil
}

// EnabledBackends returns the logical names of enabled backends.
func (f *File) EnabledBackends() []string {
	var names []string
	for name, b := range f.Backends {
		if b.Enabled {
			names = append(names, name)
		}
	}
	return names
}

// BackendConfigs converts enabled backends into adapter configs keyed
// by canonical identity.
func (f *File) BackendConfigs() []base.BackendConfig {
	var out []base.BackendConfig
	for name, b := range f.Backends {
		if !b.Enabled {
			continue
		}
		cfg := base.BackendConfig{
			Identity: base.Identity{Kind: validKinds[b.Kind], LogicalName: name},
			Host:     b.Host,
			Port:     b.Port,
			Database: b.Database,
			User:     b.User,
			Password: b.Password,
			Options:  b.Options,
		}
		if b.MaxQueryTimeoutMs > 0 {
			cfg.MaxQueryTimeout = time.Duration(b.MaxQueryTimeoutMs) * time.Millisecond
		}
		out = append(out, cfg)
	}
	return out
}

// PoolConfigs converts enabled backends into pool configs, applying
// defaults for anything unset.
func (f *File) PoolConfigs() []pool.Config {
	var out []pool.Config
	for name, b := range f.Backends {
		if !b.Enabled {
			continue
		}
		cfg := pool.Config{
			Backend:        base.Identity{Kind: validKinds[b.Kind], LogicalName: name},
			MinSize:        b.Pool.MinSize,
			MaxSize:        b.Pool.MaxSize,
			AcquireTimeout: time.Duration(b.Pool.AcquireTimeoutMs) * time.Millisecond,
			IdleTTL:        time.Duration(b.Pool.IdleTTLMs) * time.Millisecond,
		}
		if cfg.MaxSize <= 0 {
			cfg.MaxSize = defaultMaxPoolSize
		}
		if cfg.AcquireTimeout <= 0 {
			cfg.AcquireTimeout = defaultAcquireTimeout
		}
		if cfg.IdleTTL <= 0 {
			cfg.IdleTTL = defaultIdleTTL
		}
		out = append(out, cfg)
	}
	return out
}

// SecurityPolicy builds the validator policy. read_only defaults to
// true when the file is silent: the safe direction for a gateway that
// exists to stop agents from writing.
func (f *File) SecurityPolicy() policy.SecurityPolicy {
	p := policy.DefaultPolicy()
	if f.Policy.ReadOnly != nil {
		p.ReadOnly = *f.Policy.ReadOnly
	}
	if len(f.Policy.MutatingKeywords) > 0 {
		p.MutatingKeywords = f.Policy.MutatingKeywords
	}
	p.ProcedureAllowList = f.Policy.ProcedureAllowList
	return p
}

// SanitizeRules builds the sanitizer inputs with defaulted caps.
func (f *File) SanitizeRules() ([]sanitize.Rule, sanitize.Limits) {
	rules := make([]sanitize.Rule, 0, len(f.Sanitize.SensitiveColumns))
	for _, r := range f.Sanitize.SensitiveColumns {
		rules = append(rules, sanitize.Rule{
			Column:     r.Column,
			Mode:       sanitize.MaskMode(r.Mode),
			KeepSuffix: r.KeepSuffix,
		})
	}
	limits := sanitize.Limits{MaxRows: f.Sanitize.MaxRows, MaxBytes: f.Sanitize.MaxBytes}
	if limits.MaxRows <= 0 {
		limits.MaxRows = defaultMaxRows
	}
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = defaultMaxBytes
	}
	return rules, limits
}

// ListenAddr returns the configured or default listen address.
func (f *File) ListenAddr() string {
	if f.Server.ListenAddr == "" {
		return defaultListenAddr
	}
	return f.Server.ListenAddr
}

// ShutdownGrace returns how long shutdown waits for in-flight work.
func (f *File) ShutdownGrace() time.Duration {
	if f.Server.ShutdownGraceMs <= 0 {
		return defaultShutdownGrace
	}
	return time.Duration(f.Server.ShutdownGraceMs) * time.Millisecond
}

// AuditFilePath returns the configured or default audit file path.
func (f *File) AuditFilePath() string {
	if f.Audit.FilePath == "" {
		return defaultAuditFile
	}
	return f.Audit.FilePath
}

// AuditFallbackPath returns the configured or default fallback path.
func (f *File) AuditFallbackPath() string {
	if f.Audit.FallbackPath == "" {
		return defaultAuditFallback
	}
	return f.Audit.FallbackPath
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references, supporting
// ${VAR_NAME:-default} for fallbacks. Undefined variables without a
// default expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}
