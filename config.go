package retry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defaults.
const (
	DefaultConfigDelay   = time.Second
	DefaultConfigBackoff = "constant"
)

// Config is the file form of a policy. Durations use Go syntax ("1s",
// "250ms").
//
//	max_retries: 2
//	delay: 1s
//	backoff: constant
//	timeout: 6s
type Config struct {
	MaxRetries *int           `yaml:"max_retries"` // nil means DefaultMaxRetries
	Delay      *time.Duration `yaml:"delay"`       // nil means DefaultConfigDelay
	Backoff    string         `yaml:"backoff"`     // constant, linear or exponential
	MinDelay   time.Duration  `yaml:"min_delay"`
	MaxDelay   time.Duration  `yaml:"max_delay"`
	Jitter     float64        `yaml:"jitter"`
	Timeout    time.Duration  `yaml:"timeout"`
}

// LoadConfig reads and validates a YAML policy file.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path comes from the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read retry config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML, applies defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse retry config: %v", ErrInvalidArgument, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MaxRetries == nil {
		n := DefaultMaxRetries
		c.MaxRetries = &n
	}
	if c.Delay == nil {
		d := DefaultConfigDelay
		c.Delay = &d
	}
	if c.Backoff == "" {
		c.Backoff = DefaultConfigBackoff
	}
}

// Validate reports the first invalid field, wrapped in ErrInvalidArgument.
func (c *Config) Validate() error {
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0, got %d", ErrInvalidArgument, *c.MaxRetries)
	}
	if c.Delay != nil && *c.Delay < 0 {
		return fmt.Errorf("%w: delay must be >= 0, got %v", ErrInvalidArgument, *c.Delay)
	}
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("%w: min_delay and max_delay must be >= 0", ErrInvalidArgument)
	}
	if c.MaxDelay > 0 && c.MinDelay > c.MaxDelay {
		return fmt.Errorf("%w: min_delay %v exceeds max_delay %v", ErrInvalidArgument, c.MinDelay, c.MaxDelay)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("%w: jitter must be within [0, 1], got %v", ErrInvalidArgument, c.Jitter)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be >= 0, got %v", ErrInvalidArgument, c.Timeout)
	}
	if _, err := ParseShape(c.Backoff); err != nil {
		return err
	}
	return nil
}

// BackoffStrategy builds the backoff described by c. Bounds apply before
// jitter.
func (c *Config) BackoffStrategy() (Backoff, error) {
	shape, err := ParseShape(c.Backoff)
	if err != nil {
		return nil, err
	}
	base := DefaultConfigDelay
	if c.Delay != nil {
		base = *c.Delay
	}
	b := shape.Backoff(base)
	if c.MinDelay > 0 {
		b = WithMin(c.MinDelay, b)
	}
	if c.MaxDelay > 0 {
		b = WithCap(c.MaxDelay, b)
	}
	if c.Jitter > 0 {
		b = WithJitter(c.Jitter, b)
	}
	return b, nil
}

// Options converts c into policy options.
func (c *Config) Options() ([]Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	b, err := c.BackoffStrategy()
	if err != nil {
		return nil, err
	}
	retries := DefaultMaxRetries
	if c.MaxRetries != nil {
		retries = *c.MaxRetries
	}
	return []Option{
		WithMaxRetries(retries),
		WithBackoff(b),
		WithTimeout(c.Timeout),
	}, nil
}

// Policy builds a Policy from c. extra options apply after the file's.
func (c *Config) Policy(extra ...Option) (*Policy, error) {
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	return New(append(opts, extra...)...), nil
}
