package hotswap

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the reconciliation settings.
type Config struct {
	// Strategy used when a change event names none.
	Strategy string `yaml:"strategy"`

	// Scopes whose contexts are tracked per instance (one per session, window, ...).
	TrackableScopes []string `yaml:"trackable_scopes"`

	// Accepted archive kinds; an unspecified kind is always accepted.
	ArchiveKinds []string `yaml:"archive_kinds"`

	Descriptors []DescriptorRule `yaml:"descriptors"`

	FingerprintCacheSize int `yaml:"fingerprint_cache_size"`

	// SkipTransientScopes leaves live request and dependent instances alone;
	// only the bean metadata is refreshed for them.
	SkipTransientScopes bool `yaml:"skip_transient_scopes"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the zap logger built by NewLogger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

func DefaultConfig() Config {
	return Config{
		Strategy:             StrategyNever.String(),
		TrackableScopes:      []string{string(ScopeSession)},
		ArchiveKinds:         []string{string(ArchiveExplicit), string(ArchiveImplicit)},
		Descriptors:          DefaultDescriptorRules(),
		FingerprintCacheSize: defaultFingerprintCacheSize,
		SkipTransientScopes:  true,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads a YAML config file on top of the defaults. A missing file
// yields the defaults. Variables from a .env file in the working directory and
// the process environment override file values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if s := os.Getenv("HOTSWAP_STRATEGY"); s != emptyString {
		c.Strategy = s
	}
	if level := os.Getenv("HOTSWAP_LOG_LEVEL"); level != emptyString {
		c.Logging.Level = level
	}
}

// Validate rejects strategy and archive kind names that are not known.
func (c Config) Validate() error {
	if c.Strategy != emptyString {
		if _, ok := LookupReloadStrategy(c.Strategy); !ok {
			return fmt.Errorf("config: unknown reload strategy %q", c.Strategy)
		}
	}
	for _, kind := range c.ArchiveKinds {
		switch ArchiveKind(strings.ToUpper(kind)) {
		case ArchiveExplicit, ArchiveImplicit:
		default:
			return fmt.Errorf("config: unknown archive kind %q", kind)
		}
	}
	return nil
}

// DefaultStrategy returns the configured strategy, NEVER when unset or unknown.
func (c Config) DefaultStrategy() ReloadStrategy {
	return ParseReloadStrategy(c.Strategy)
}

func (c Config) trackableScopes() []Scope {
	scopes := make([]Scope, 0, len(c.TrackableScopes))
	for _, s := range c.TrackableScopes {
		scopes = append(scopes, Scope(strings.ToLower(s)))
	}
	return scopes
}

func (c Config) acceptsArchiveKind(kind ArchiveKind) bool {
	if kind == ArchiveUnspecified {
		return true
	}
	for _, k := range c.ArchiveKinds {
		if ArchiveKind(strings.ToUpper(k)) == kind {
			return true
		}
	}
	return false
}

func (c Config) descriptorRules() []DescriptorRule {
	if len(c.Descriptors) == 0 {
		return DefaultDescriptorRules()
	}
	return c.Descriptors
}
