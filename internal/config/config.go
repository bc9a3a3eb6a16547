// Package config loads the terminal's YAML configuration and validates it
// against an embedded CUE schema before anything else starts. Validation
// errors carry file positions where CUE can attribute them.
package config

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	_ "embed"
)

//go:embed schema.cue
var schemaCUE string

// Defaults applied when the config file leaves a field out.
const (
	DefaultReconnectDelay = 3 * time.Second
	DefaultPendingTimeout = 2 * time.Second
	DefaultCurrency       = "EUR"
	DefaultJournalPath    = "basketd.db"
	DefaultListenAddr     = ":7143"
)

// Transport names.
const (
	TransportSSE  = "sse"
	TransportAMQP = "amqp"
)

// Config is the terminal configuration.
type Config struct {
	TerminalID string `yaml:"terminal_id"`
	EmployeeID string `yaml:"employee_id"`

	Backend struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"backend"`

	Transport string `yaml:"transport"`

	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`

	Capabilities map[string]bool `yaml:"capabilities"`

	ReconnectDelay Duration `yaml:"reconnect_delay"`
	PendingTimeout Duration `yaml:"pending_timeout"`

	Currency    string `yaml:"currency"`
	JournalPath string `yaml:"journal_path"`
	ListenAddr  string `yaml:"listen_addr"`
}

// Duration is a YAML-friendly time.Duration ("3s", "500ms").
type Duration time.Duration

// UnmarshalYAML parses Go duration syntax.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Enabled reports whether a capability gate is on.
func (c *Config) Enabled(capability string) bool {
	return c.Capabilities[capability]
}

// ValidationError is a schema violation with its position in the config
// file, when CUE can attribute one.
type ValidationError struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Load reads, validates, and decodes the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if errs := Validate(path, data); len(errs) > 0 {
		return nil, fmt.Errorf("validate config: %w", errs[0])
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()

	if cfg.Transport == TransportAMQP && cfg.AMQP.URL == "" {
		return nil, ValidationError{Path: "amqp.url", Message: "required when transport is amqp"}
	}
	return cfg, nil
}

// Validate checks the raw YAML against the embedded schema. All violations
// are collected, not just the first.
func Validate(filename string, data []byte) []ValidationError {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return []ValidationError{{Message: fmt.Sprintf("internal schema error: %v", err)}}
	}
	schema = schema.LookupPath(cue.ParsePath("#Config"))

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return []ValidationError{{Message: fmt.Sprintf("parse yaml: %v", err)}}
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return []ValidationError{{Message: fmt.Sprintf("build yaml: %v", err)}}
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		var out []ValidationError
		for _, e := range cueerrors.Errors(err) {
			ve := ValidationError{Message: e.Error()}
			if pos := e.Position(); pos.IsValid() {
				ve.Path = fmt.Sprintf("%s:%d:%d", pos.Filename(), pos.Line(), pos.Column())
			}
			out = append(out, ve)
		}
		return out
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportSSE
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = Duration(DefaultReconnectDelay)
	}
	if c.PendingTimeout == 0 {
		c.PendingTimeout = Duration(DefaultPendingTimeout)
	}
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	if c.JournalPath == "" {
		c.JournalPath = DefaultJournalPath
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Capabilities == nil {
		c.Capabilities = map[string]bool{}
	}
	for _, capability := range []string{"age_verification", "fraud_detection", "purchase_recommender"} {
		if _, ok := c.Capabilities[capability]; !ok {
			c.Capabilities[capability] = true
		}
	}
}
