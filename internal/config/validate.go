package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/blackwell-systems/edgeredirect/internal/redirect"
)

type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Add(format string, args ...any) {
	v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s)", len(v.Problems))
}

func (c *Config) Validate() error {
	v := &ValidationError{}

	if c.ConfigVersion != 1 {
		v.Add("configVersion must be 1")
	}

	if err := validateListen(c.Server.Listen); err != nil {
		v.Add("server.listen invalid: %v", err)
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			v.Add("server.tls.certFile required when tls.enabled is true")
		} else if err := requireFile(c.resolvePath(c.Server.TLS.CertFile)); err != nil {
			v.Add("server.tls.certFile invalid: %v", err)
		}
		if c.Server.TLS.KeyFile == "" {
			v.Add("server.tls.keyFile required when tls.enabled is true")
		} else if err := requireFile(c.resolvePath(c.Server.TLS.KeyFile)); err != nil {
			v.Add("server.tls.keyFile invalid: %v", err)
		}
	}

	if c.Origin.URL != "" {
		if err := validateURL(c.Origin.URL); err != nil {
			v.Add("origin.url invalid: %v", err)
		}
	}
	if c.Origin.Timeout < 0 {
		v.Add("origin.timeout must be >= 0")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 {
			v.Add("rateLimit.rps must be > 0")
		}
		if c.RateLimit.Burst <= 0 {
			v.Add("rateLimit.burst must be > 0")
		}
		switch c.RateLimit.Key {
		case RateLimitKeyIP, RateLimitKeyIPHost:
		default:
			v.Add("rateLimit.key must be ip|ip_host")
		}
		if c.RateLimit.StatusCode != 0 && (c.RateLimit.StatusCode < 400 || c.RateLimit.StatusCode > 599) {
			v.Add("rateLimit.statusCode must be a 4xx or 5xx code")
		}
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		v.Add("logging.level invalid: %v", err)
	}
	switch c.Logging.Format {
	case FormatJSON, FormatText:
	default:
		v.Add("logging.format must be json|text")
	}
	if c.Logging.File != "" && c.Logging.MaxSizeMB <= 0 {
		v.Add("logging.maxSizeMB must be > 0 when logging.file is set")
	}
	if c.Logging.MaxBackups < 0 {
		v.Add("logging.maxBackups must be >= 0")
	}

	if c.Metrics.Enabled {
		if err := validateListen(c.Metrics.Listen); err != nil {
			v.Add("metrics.listen invalid: %v", err)
		} else if c.Metrics.Listen == c.Server.Listen {
			v.Add("metrics.listen must differ from server.listen")
		}
	}

	c.validateRules(v)

	if len(v.Problems) > 0 {
		sort.Strings(v.Problems)
		return v
	}
	return nil
}

func (c *Config) validateRules(v *ValidationError) {
	names := map[string]int{}
	for i, rule := range c.Rules {
		name := rule.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i)
		}
		if prev, exists := names[name]; exists {
			v.Add("rules[%d].name %q is duplicated (first at rules[%d])", i, name, prev)
		} else {
			names[name] = i
		}
		if strings.TrimSpace(rule.Match.Host) == "" {
			v.Add("rules[%d].match.host is required", i)
			continue
		}
		if strings.TrimSpace(rule.Target) == "" {
			v.Add("rules[%d].target is required", i)
			continue
		}

		converted := redirect.Rule{
			Name:          rule.Name,
			Host:          rule.Match.Host,
			PathPrefix:    rule.Match.PathPrefix,
			Target:        rule.Target,
			PreserveQuery: rule.PreserveQuery,
		}
		if err := redirect.CheckRule(converted); err != nil {
			v.Add("rules[%d] invalid: %v", i, err)
		}
	}
}

func validateListen(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("address is required")
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return err
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("must include scheme and host")
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
