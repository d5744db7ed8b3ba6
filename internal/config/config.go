// Package config loads the engine configuration from a YAML file and
// INTENT_-prefixed environment variables, with hot reload of the gating
// section.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/infergate/intent-router/internal/gating"
)

type Config struct {
	Server      ServerConfig       `koanf:"server"`
	Storage     StorageConfig      `koanf:"storage"`
	Classifiers []ClassifierConfig `koanf:"classifiers"`
	Reasoner    ReasonerConfig     `koanf:"reasoner"`
	Reconcile   ReconcileConfig    `koanf:"reconcile"`
	Gating      gating.Config      `koanf:"gating"`
	Tuner       TunerConfig        `koanf:"tuner"`
	Costs       CostConfig         `koanf:"costs"`
	Telemetry   TelemetryConfig    `koanf:"telemetry"`
}

// TelemetryConfig controls the trace exporter.
type TelemetryConfig struct {
	// Pretty switches the span exporter to indented output.
	Pretty bool `koanf:"pretty"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// StatsWindow is the trailing period the stats endpoint aggregates over.
	StatsWindow time.Duration `koanf:"stats_window"`
}

// CostConfig carries the per-1000-inference backend costs used by the stats
// endpoint's savings estimate.
type CostConfig struct {
	CheapPer1K     float64 `koanf:"cheap_per_1k"`
	ExpensivePer1K float64 `koanf:"expensive_per_1k"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// ClassifierConfig describes one cheap classifier backend.
type ClassifierConfig struct {
	Name     string        `koanf:"name"`
	Type     string        `koanf:"type"` // nlu, llm
	Endpoint string        `koanf:"endpoint"`
	APIKey   string        `koanf:"api_key"`
	Model    string        `koanf:"model"` // backend model name, llm only
	Timeout  time.Duration `koanf:"timeout"`
}

// ReasonerConfig describes the expensive reasoning backend.
type ReasonerConfig struct {
	Name     string        `koanf:"name"`
	Endpoint string        `koanf:"endpoint"`
	APIKey   string        `koanf:"api_key"`
	Model    string        `koanf:"model"`
	Timeout  time.Duration `koanf:"timeout"`
}

type ReconcileConfig struct {
	// Primary names the designated primary classifier. Empty means the first
	// configured classifier.
	Primary string `koanf:"primary"`
}

// TunerConfig controls the out-of-band adaptive threshold loop.
type TunerConfig struct {
	Enabled              bool          `koanf:"enabled"`
	TargetEscalationRate float64       `koanf:"target_escalation_rate"`
	AdjustmentStep       float64       `koanf:"adjustment_step"`
	Interval             time.Duration `koanf:"interval"`
	Window               time.Duration `koanf:"window"`
	CheapAccuracy        float64       `koanf:"cheap_accuracy"`
	ExpensiveAccuracy    float64       `koanf:"expensive_accuracy"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (missing file is fine, env-only setups are supported),
// overlays INTENT_ environment variables, applies defaults, and substitutes
// ${VAR} references in API keys.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("INTENT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "INTENT_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	for i := range cfg.Classifiers {
		cfg.Classifiers[i].APIKey = substituteEnvVars(cfg.Classifiers[i].APIKey)
	}
	cfg.Reasoner.APIKey = substituteEnvVars(cfg.Reasoner.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                  8080,
		"server.stats_window":          "1h",
		"costs.cheap_per_1k":           0.10,
		"costs.expensive_per_1k":       25.00,
		"storage.type":                 "sqlite",
		"storage.sqlite.path":          "./data/intent-router.db",
		"reasoner.name":                "reasoner",
		"reasoner.timeout":             "30s",
		"gating.default_threshold":     0.70,
		"gating.high_risk_threshold":   0.85,
		"gating.high_value_threshold":  0.80,
		"gating.top2_margin_threshold": 0.10,
		"gating.high_value_min_events": 10,
		"gating.high_value_min_score":  0.6,
		"tuner.target_escalation_rate": 0.20,
		"tuner.adjustment_step":        0.02,
		"tuner.interval":               "5m",
		"tuner.window":                 "1h",
		"tuner.cheap_accuracy":         0.85,
		"tuner.expensive_accuracy":     0.95,
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	if len(c.Classifiers) == 0 {
		return fmt.Errorf("at least one classifier must be configured")
	}
	seen := make(map[string]struct{}, len(c.Classifiers))
	for _, cl := range c.Classifiers {
		if cl.Name == "" {
			return fmt.Errorf("classifier name must not be empty")
		}
		if _, dup := seen[cl.Name]; dup {
			return fmt.Errorf("duplicate classifier name %q", cl.Name)
		}
		seen[cl.Name] = struct{}{}
		switch cl.Type {
		case "nlu", "llm":
		default:
			return fmt.Errorf("classifier %q has unknown type %q", cl.Name, cl.Type)
		}
		if cl.Endpoint == "" {
			return fmt.Errorf("classifier %q requires an endpoint", cl.Name)
		}
	}
	if c.Reconcile.Primary != "" {
		if _, ok := seen[c.Reconcile.Primary]; !ok {
			return fmt.Errorf("reconcile primary %q is not a configured classifier", c.Reconcile.Primary)
		}
	}
	if c.Reasoner.Endpoint == "" {
		return fmt.Errorf("reasoner endpoint must be configured")
	}
	switch c.Storage.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	return c.Gating.Validate()
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
