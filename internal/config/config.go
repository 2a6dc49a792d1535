package config

import (
	"time"

	"github.com/blackwell-systems/edgeredirect/internal/redirect"
)

type Config struct {
	ConfigVersion int             `yaml:"configVersion"`
	Server        ServerConfig    `yaml:"server"`
	Origin        OriginConfig    `yaml:"origin"`
	RateLimit     RateLimitConfig `yaml:"rateLimit"`
	Rules         []Rule          `yaml:"rules"`
	Logging       LoggingConfig   `yaml:"logging"`
	Metrics       MetricsConfig   `yaml:"metrics"`
	Reload        ReloadConfig    `yaml:"reload"`

	baseDir string `yaml:"-"`
	path    string `yaml:"-"`
}

type ServerConfig struct {
	Listen string    `yaml:"listen"`
	TLS    TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// OriginConfig names the host that serves requests no rule redirects. An
// empty URL answers those requests with 404.
type OriginConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type RateLimitConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Key        string  `yaml:"key"`
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
	StatusCode int     `yaml:"statusCode"`
}

type Rule struct {
	Name          string    `yaml:"name"`
	Match         RuleMatch `yaml:"match"`
	Target        string    `yaml:"target"`
	PreserveQuery *bool     `yaml:"preserveQuery"`
}

type RuleMatch struct {
	Host       string `yaml:"host"`
	PathPrefix string `yaml:"pathPrefix"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"maxSizeMB"`
	MaxBackups  int    `yaml:"maxBackups"`
	Compress    bool   `yaml:"compress"`
	DecisionLog string `yaml:"decisionLog"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type ReloadConfig struct {
	Watch bool `yaml:"watch"`
}

const (
	FormatJSON = "json"
	FormatText = "text"

	RateLimitKeyIP     = "ip"
	RateLimitKeyIPHost = "ip_host"

	defaultOriginTimeout = 10 * time.Second
)

func (c *Config) BaseDir() string {
	return c.baseDir
}

// Path is the absolute path the config was loaded from, or empty for configs
// built in code.
func (c *Config) Path() string {
	return c.path
}

func (c *Config) ResolvePath(path string) string {
	return c.resolvePath(path)
}

// RedirectRules converts the configured rules, keeping their order.
func (c *Config) RedirectRules() []redirect.Rule {
	out := make([]redirect.Rule, 0, len(c.Rules))
	for _, rule := range c.Rules {
		out = append(out, redirect.Rule{
			Name:          rule.Name,
			Host:          rule.Match.Host,
			PathPrefix:    rule.Match.PathPrefix,
			Target:        rule.Target,
			PreserveQuery: rule.PreserveQuery,
		})
	}
	return out
}

// Table builds the redirect table for the configured rules.
func (c *Config) Table() (*redirect.Table, error) {
	return redirect.NewTable(c.RedirectRules())
}

func (c *Config) OriginTimeout() time.Duration {
	if c.Origin.Timeout <= 0 {
		return defaultOriginTimeout
	}
	return c.Origin.Timeout
}
