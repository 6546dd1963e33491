// Package config loads client settings from JSON, YAML or TOML files.
package config

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pelletier/go-toml"
	"github.com/wheakerd/sse-client/client"
	"github.com/wheakerd/sse-client/errors"
	"github.com/wheakerd/sse-client/transport"
)

// DefaultTimeout is the connect timeout in seconds.
const DefaultTimeout = 0.5

// Config is the file form of the client options.
type Config struct {
	URL                string            `json:"url"`
	Timeout            *float64          `json:"timeout,omitempty"`
	Headers            map[string]string `json:"headers,omitempty"`
	Backend            string            `json:"backend,omitempty"`
	Fingerprint        string            `json:"fingerprint,omitempty"`
	InsecureSkipVerify bool              `json:"insecureSkipVerify,omitempty"`
	RecvBufferSize     int               `json:"recvBufferSize,omitempty"`
}

// Load reads a config file, choosing the format by extension.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return DecodeJSON(f)
	case ".yaml", ".yml":
		return DecodeYAML(f)
	case ".toml":
		return DecodeTOML(f)
	default:
		return nil, errors.NewInvalidArgumentError("unknown config format " + ext)
	}
}

// DecodeJSON decodes a JSON config. Unknown fields are rejected.
func DecodeJSON(r io.Reader) (*Config, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	c := &Config{}
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return c, nil
}

// DecodeYAML converts YAML to JSON with github.com/ghodss/yaml and decodes that.
func DecodeYAML(r io.Reader) (*Config, error) {
	yamlFile, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	jsonFile, err := yaml.YAMLToJSON(yamlFile)
	if err != nil {
		return nil, fmt.Errorf("failed to convert yaml to json: %w", err)
	}

	return DecodeJSON(bytes.NewReader(jsonFile))
}

// DecodeTOML converts TOML to a map with github.com/pelletier/go-toml,
// then decodes it as JSON.
func DecodeTOML(r io.Reader) (*Config, error) {
	tomlFile, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	configMap := make(map[string]interface{})
	if err := toml.Unmarshal(tomlFile, &configMap); err != nil {
		return nil, fmt.Errorf("failed to convert toml to map: %w", err)
	}

	jsonFile, err := json.Marshal(&configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to convert map to json: %w", err)
	}

	return DecodeJSON(bytes.NewReader(jsonFile))
}

// TimeoutDuration returns the connect timeout, defaulting to DefaultTimeout.
func (c *Config) TimeoutDuration() time.Duration {
	seconds := DefaultTimeout
	if c.Timeout != nil {
		seconds = *c.Timeout
	}
	return time.Duration(seconds * float64(time.Second))
}

// Options converts the config to client options. Headers are not included;
// apply them with ApplyHeaders once the client exists.
func (c *Config) Options() ([]client.Option, error) {
	if c.Timeout != nil && *c.Timeout < 0 {
		return nil, errors.NewInvalidArgumentError("timeout must not be negative")
	}

	backend, err := transport.ParseBackend(c.Backend)
	if err != nil {
		return nil, err
	}

	opts := []client.Option{
		client.WithTimeout(c.TimeoutDuration()),
		client.WithBackend(backend),
	}
	if c.Fingerprint != "" {
		opts = append(opts, client.WithFingerprint(c.Fingerprint))
	}
	if c.InsecureSkipVerify {
		opts = append(opts, client.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}
	if c.RecvBufferSize > 0 {
		opts = append(opts, client.WithRecvBufferSize(c.RecvBufferSize))
	}
	return opts, nil
}

// ApplyHeaders merges the configured headers into the client.
func (c *Config) ApplyHeaders(cl *client.Client) {
	if len(c.Headers) > 0 {
		cl.SetHeaders(c.Headers)
	}
}
