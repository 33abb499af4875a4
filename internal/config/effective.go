package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const redactedPlaceholder = "<redacted>"

// MarshalEffective returns the effective configuration rendered in the requested format
// after redacting sensitive fields.
func (c *Config) MarshalEffective(format string) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("nil config")
	}
	sanitized := c.redactedClone()
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "yaml", "yml":
		return yaml.Marshal(&sanitized)
	case "json":
		return json.MarshalIndent(&sanitized, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func (c *Config) redactedClone() Config {
	if c == nil {
		return Config{}
	}
	clone := *c
	if clone.Cloudflare.APIKey != "" {
		clone.Cloudflare.APIKey = redactedPlaceholder
	}
	if clone.Secrets.Vault.Token != "" {
		clone.Secrets.Vault.Token = redactedPlaceholder
	}
	if len(c.Telemetry.OTLP.Headers) > 0 {
		clone.Telemetry.OTLP.Headers = map[string]string{
			fmt.Sprintf("<redacted:%d headers>", len(c.Telemetry.OTLP.Headers)): redactedPlaceholder,
		}
	}
	return clone
}
