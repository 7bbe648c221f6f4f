// Package config loads the fsindex configuration file.
//
// YAML is the default format; files ending in .toml are decoded as TOML.
// Environment overrides are applied after the file is read:
//   - FSINDEX_CONFIG: configuration file used when no path is given
//   - FSINDEX_DB_PATH: overrides storage.path
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dshills/fsindex/internal/filter"
	"github.com/dshills/fsindex/pkg/types"
)

// Defaults
const (
	DefaultPath       = "/etc/fsindex/config.yaml"
	DefaultDBPath     = "/var/lib/fsindex/index.db"
	DefaultIndex      = "files"
	DefaultBulkSize   = 10000
	DefaultMaxRetries = 10
	DefaultWaitTime   = "30m"
)

// Environment variables
const (
	EnvConfig = "FSINDEX_CONFIG"
	EnvDBPath = "FSINDEX_DB_PATH"
)

// Config is the complete configuration
type Config struct {
	Directories          []string   `yaml:"directories" toml:"directories" validate:"required,min=1,dive,required,abspath"`
	DumpDocumentsOnError bool       `yaml:"dump_documents_on_error" toml:"dump_documents_on_error"`
	DumpDirectory        string     `yaml:"dump_directory" toml:"dump_directory" validate:"omitempty,abspath"`
	WaitTime             string     `yaml:"wait_time" toml:"wait_time" validate:"required"`
	ExtendedMetadata     bool       `yaml:"extended_metadata" toml:"extended_metadata"`
	Workers              int        `yaml:"workers" toml:"workers" validate:"gte=0,lte=1024"`
	Exclusions           Exclusions `yaml:"exclusions" toml:"exclusions"`
	Storage              Storage    `yaml:"storage" toml:"storage"`
	HTTP                 HTTP       `yaml:"http" toml:"http"`
}

// Exclusions lists the paths that are never indexed
type Exclusions struct {
	PartialPaths       []string `yaml:"partial_paths" toml:"partial_paths"`
	RegularExpressions []string `yaml:"regular_expressions" toml:"regular_expressions"`
}

// Storage configures the search backend
type Storage struct {
	Path        string `yaml:"path" toml:"path" validate:"required"`
	Index       string `yaml:"index" toml:"index" validate:"required,max=128"`
	MappingFile string `yaml:"mapping_file" toml:"mapping_file"`
	BulkSize    int    `yaml:"bulk_size" toml:"bulk_size" validate:"gte=1"`
	MaxRetries  int    `yaml:"max_retries" toml:"max_retries" validate:"gte=1,lte=100"`
}

// HTTP configures the optional status endpoint of the daemon
type HTTP struct {
	Listen     string  `yaml:"listen" toml:"listen" validate:"omitempty,hostname_port"`
	SearchRate float64 `yaml:"search_rate" toml:"search_rate" validate:"gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("abspath", func(fl validator.FieldLevel) bool {
		return filepath.IsAbs(fl.Field().String())
	})
	return v
}

var intervalPattern = regexp.MustCompile(`^(\d+)(\w)$`)

// ParseInterval parses a wait time such as "30m" into a duration. Units are
// s, m, h and d.
func ParseInterval(s string) (time.Duration, error) {
	m := intervalPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: unknown wait_time %q", types.ErrInvalidConfig, s)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: wait_time %q: %v", types.ErrInvalidConfig, s, err)
	}

	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w: unknown time unit in wait_time %q, expected \"s\", \"m\", \"h\" or \"d\"",
			types.ErrInvalidConfig, s)
	}

	if n <= 0 {
		return 0, fmt.Errorf("%w: wait_time %q must be positive", types.ErrInvalidConfig, s)
	}
	if n > int64(1<<63-1)/int64(unit) {
		return 0, fmt.Errorf("%w: wait_time %q is too large", types.ErrInvalidConfig, s)
	}
	return time.Duration(n) * unit, nil
}

// Default returns a configuration with every optional value set
func Default() *Config {
	return &Config{
		WaitTime: DefaultWaitTime,
		Storage: Storage{
			Path:       DefaultDBPath,
			Index:      DefaultIndex,
			BulkSize:   DefaultBulkSize,
			MaxRetries: DefaultMaxRetries,
		},
	}
}

// Load reads, validates and returns the configuration at path. An empty path
// falls back to $FSINDEX_CONFIG and then DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration document. ext selects the format: ".toml"
// for TOML, anything else for YAML.
func Parse(data []byte, ext string) (*Config, error) {
	cfg := Default()

	if strings.EqualFold(ext, ".toml") {
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown key %q", types.ErrInvalidConfig, undecoded[0].String())
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment overrides
func (c *Config) ApplyEnvOverrides() {
	if path := os.Getenv(EnvDBPath); path != "" {
		c.Storage.Path = path
	}
}

// SetDefaults fills values a file may have cleared
func (c *Config) SetDefaults() {
	if c.WaitTime == "" {
		c.WaitTime = DefaultWaitTime
	}
	if c.Storage.Index == "" {
		c.Storage.Index = DefaultIndex
	}
	if c.Storage.BulkSize == 0 {
		c.Storage.BulkSize = DefaultBulkSize
	}
	if c.Storage.MaxRetries == 0 {
		c.Storage.MaxRetries = DefaultMaxRetries
	}
	for i, dir := range c.Directories {
		if dir != "" {
			c.Directories[i] = filepath.Clean(dir)
		}
	}
}

// Validate checks the configuration. Every error wraps types.ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed on %q", types.ErrInvalidConfig, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}

	if _, err := ParseInterval(c.WaitTime); err != nil {
		return err
	}
	if _, err := c.Rules(); err != nil {
		return err
	}
	return nil
}

// Interval returns the parsed wait time between daemon runs
func (c *Config) Interval() time.Duration {
	d, err := ParseInterval(c.WaitTime)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// Rules compiles the exclusion rules
func (c *Config) Rules() (*filter.Ruleset, error) {
	return filter.New(c.Exclusions.PartialPaths, c.Exclusions.RegularExpressions)
}
