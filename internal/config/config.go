// Package config loads search definitions from YAML files with
// environment-variable overrides and converts them into the types consumed
// by the search packages.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/mask"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/repetition"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/scoreboard"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/sim"
)

// Config is the top-level search definition.
type Config struct {
	Name       string            `yaml:"name"`
	Defaults   TargetConfig      `yaml:"defaults"`
	Targets    []TargetConfig    `yaml:"targets"`
	Search     SearchConfig      `yaml:"search"`
	MultiPass  string            `yaml:"multipass"`
	Repetition RepetitionConfig  `yaml:"repetition"`
	Scoreboard scoreboard.Config `yaml:"scoreboard"`
	Datalog    DatalogConfig     `yaml:"datalog"`
	Bench      BenchConfig       `yaml:"bench"`
	Logging    LoggingConfig     `yaml:"logging"`
	Store      StoreConfig       `yaml:"store"`
	Lock       LockConfig        `yaml:"lock"`
}

// TargetConfig describes one voltage target. Unset fields are taken from
// Config.Defaults.
type TargetConfig struct {
	Name       string   `yaml:"name"`
	Start      *float64 `yaml:"start"`
	End        *float64 `yaml:"end"`
	Step       *float64 `yaml:"step"`
	RetryStart *float64 `yaml:"retry_start"`
}

// SearchConfig controls the engine.
type SearchConfig struct {
	MaxIterations int    `yaml:"max_iterations"`
	PatternPolicy string `yaml:"pattern_policy"`
	Criterion     string `yaml:"criterion"`
}

// RepetitionConfig controls re-verification of found points.
type RepetitionConfig struct {
	Max               int    `yaml:"max"`
	Policy            string `yaml:"policy"`
	ContinueFromFound bool   `yaml:"continue_from_found"`
}

// DatalogConfig controls result records.
type DatalogConfig struct {
	Decimals   int  `yaml:"decimals"`
	Patterns   bool `yaml:"patterns"`
	Increments bool `yaml:"increments"`
	PerPass    bool `yaml:"per_pass"`
}

// BenchConfig describes the simulated device used when no instrument is
// selected.
type BenchConfig struct {
	Patterns []sim.Pattern `yaml:"patterns"`
}

// LoggingConfig controls log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig points at the result history database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LockConfig controls the supply lock file.
type LockConfig struct {
	Path string        `yaml:"path"`
	Wait time.Duration `yaml:"wait"`
}

// Load reads a YAML file (if path is non-empty), applies VMIN_* environment
// overrides and merges target defaults. It does not validate.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.mergeDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document the same way Load does.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.mergeDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Name: "vmin",
		Search: SearchConfig{
			PatternPolicy: search.LastFailure.String(),
			Criterion:     search.AllTargets.String(),
		},
		Repetition: RepetitionConfig{
			Max:    1,
			Policy: "until-pass",
		},
		Datalog: DatalogConfig{
			Decimals:   3,
			Patterns:   true,
			Increments: true,
			PerPass:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// mergeDefaults fills every unset target field from Defaults and names
// anonymous targets by position.
func (c *Config) mergeDefaults() error {
	for i := range c.Targets {
		if err := mergo.Merge(&c.Targets[i], c.Defaults); err != nil {
			return fmt.Errorf("merging defaults into target %d: %w", i, err)
		}
		if c.Targets[i].Name == "" {
			c.Targets[i].Name = fmt.Sprintf("target%d", i)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VMIN_NAME"); v != "" {
		cfg.Name = v
	}
	if v := os.Getenv("VMIN_MULTIPASS"); v != "" {
		cfg.MultiPass = v
	}
	if v := os.Getenv("VMIN_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxIterations = n
		}
	}
	if v := os.Getenv("VMIN_MAX_REPETITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Repetition.Max = n
		}
	}
	if v := os.Getenv("VMIN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VMIN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("VMIN_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("VMIN_LOCK_PATH"); v != "" {
		cfg.Lock.Path = v
	}
}

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if _, err := c.SearchTargets(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if _, err := c.EngineConfig(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if _, err := c.Masks(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if _, err := c.RepetitionConfig(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := c.Scoreboard.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if c.Datalog.Decimals < 0 {
		errs = multierror.Append(errs, search.ConfigErrorf("datalog decimals", "must not be negative, got %d", c.Datalog.Decimals))
	}
	for i, p := range c.Bench.Patterns {
		if p.Target < search.Unattributed || p.Target >= len(c.Targets) {
			errs = multierror.Append(errs, search.ConfigErrorf("bench pattern",
				"pattern %d (%s) targets %d, %d targets configured", i, p.Name, p.Target, len(c.Targets)))
		}
	}
	return errs.ErrorOrNil()
}

// SearchTargets converts the merged target list.
func (c *Config) SearchTargets() ([]search.Target, error) {
	var errs *multierror.Error
	targets := make([]search.Target, len(c.Targets))
	for i, t := range c.Targets {
		for field, v := range map[string]*float64{"start": t.Start, "end": t.End, "step": t.Step} {
			if v == nil {
				errs = multierror.Append(errs, &search.ConfigError{Target: i, Field: field, Msg: "not set and no default given"})
			}
		}
		if t.Start == nil || t.End == nil || t.Step == nil {
			continue
		}
		targets[i] = search.Target{
			Name:       t.Name,
			Start:      *t.Start,
			End:        *t.End,
			Step:       *t.Step,
			RetryStart: t.RetryStart,
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	if err := search.ValidateTargets(targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// Names returns the target names in order.
func (c *Config) Names() []string {
	names := make([]string, len(c.Targets))
	for i, t := range c.Targets {
		names[i] = t.Name
	}
	return names
}

// EngineConfig converts the search section.
func (c *Config) EngineConfig() (*search.Config, error) {
	if c.Search.MaxIterations < 0 {
		return nil, search.ConfigErrorf("max iterations", "must not be negative, got %d", c.Search.MaxIterations)
	}
	policy, err := search.ParsePatternPolicy(c.Search.PatternPolicy)
	if err != nil {
		return nil, err
	}
	criterion, err := search.ParseCriterion(c.Search.Criterion)
	if err != nil {
		return nil, err
	}
	cfg := search.DefaultConfig()
	cfg.MaxIterations = c.Search.MaxIterations
	cfg.Policy = policy
	cfg.Criterion = criterion
	return cfg, nil
}

// Masks parses the multi-pass list. Length checks happen when the masks
// are bound to an engine.
func (c *Config) Masks() ([]mask.Mask, error) {
	masks, err := mask.ParseList(c.MultiPass)
	if err != nil {
		return nil, search.ConfigErrorf("multi-pass masks", "%v", err)
	}
	return masks, nil
}

// RepetitionConfig converts the repetition section. Logger, datalog and
// post-processing are left for the caller.
func (c *Config) RepetitionConfig() (*repetition.Config, error) {
	policy, err := repetition.ParsePolicy(c.Repetition.Policy)
	if err != nil {
		return nil, err
	}
	cfg := &repetition.Config{
		MaxRepetitions:    c.Repetition.Max,
		Policy:            policy,
		ContinueFromFound: c.Repetition.ContinueFromFound,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
