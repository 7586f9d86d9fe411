// Package config loads the device configuration file.
//
// The file is YAML. It is checked against an embedded CUE schema first, so
// type and range problems are reported together, and then decoded strictly
// into Config over the defaults.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the complete device configuration.
type Config struct {
	Database string       `yaml:"database"`
	Device   DeviceConfig `yaml:"device"`
	Remote   RemoteConfig `yaml:"remote"`
	Ingest   IngestConfig `yaml:"ingest"`
	Derive   DeriveConfig `yaml:"derive"`
	Sync     SyncConfig   `yaml:"sync"`
	Serve    ServeConfig  `yaml:"serve"`
}

type DeviceConfig struct {
	VolunteerID string `yaml:"volunteer_id"`
}

// RemoteConfig points the device at the remote store. An empty URL means
// the device runs without one.
type RemoteConfig struct {
	URL         string   `yaml:"url"`
	Timeout     Duration `yaml:"timeout"`
	TokenSecret string   `yaml:"token_secret"`
}

type IngestConfig struct {
	DuplicateWindow Duration `yaml:"duplicate_window"`
}

type DeriveConfig struct {
	SafetyThreshold Duration `yaml:"safety_threshold"`
}

type SyncConfig struct {
	IntervalOnline  Duration `yaml:"interval_online"`
	IntervalOffline Duration `yaml:"interval_offline"`
	BackoffBase     Duration `yaml:"backoff_base"`
	BackoffCap      Duration `yaml:"backoff_cap"`
	MaxAttempts     int      `yaml:"max_attempts"`
}

type ServeConfig struct {
	Addr   string `yaml:"addr"`
	Roster string `yaml:"roster"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Database: "yatra.db",
		Remote:   RemoteConfig{Timeout: Duration(10 * time.Second)},
		Ingest:   IngestConfig{DuplicateWindow: Duration(10 * time.Minute)},
		Derive:   DeriveConfig{SafetyThreshold: Duration(6 * time.Hour)},
		Sync: SyncConfig{
			IntervalOnline:  Duration(5 * time.Second),
			IntervalOffline: Duration(30 * time.Second),
			BackoffBase:     Duration(time.Second),
			BackoffCap:      Duration(16 * time.Second),
			MaxAttempts:     5,
		},
		Serve: ServeConfig{Addr: ":8080"},
	}
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes configuration YAML over the defaults.
func Parse(data []byte) (Config, error) {
	if err := validateSchema(data); err != nil {
		return Config{}, err
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks relations between fields that the schema cannot express.
func (c Config) Validate() error {
	var problems []string
	if c.Sync.BackoffCap < c.Sync.BackoffBase {
		problems = append(problems, "sync.backoff_cap must not be below sync.backoff_base")
	}
	if c.Sync.IntervalOnline <= 0 || c.Sync.IntervalOffline <= 0 {
		problems = append(problems, "sync intervals must be positive")
	}
	if c.Derive.SafetyThreshold <= 0 {
		problems = append(problems, "derive.safety_threshold must be positive")
	}
	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

// Error lists every problem found in a configuration file.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

func validateSchema(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		var problems []string
		for _, e := range cueerrors.Errors(err) {
			problems = append(problems, e.Error())
		}
		return &Error{Problems: problems}
	}
	return nil
}
