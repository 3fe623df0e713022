package strategy

import (
	"fmt"
	"sort"

	"SwapSentinel/internal/model"
)

// Config selects and parameterises a strategy.
type Config struct {
	Name          string              `yaml:"name"`
	RSI           RSIParams           `yaml:"rsi"`
	MeanReversion MeanReversionParams `yaml:"mean_reversion"`
	Composite     CompositeConfig     `yaml:"composite"`
}

// CompositeConfig lists the children of a composite strategy.
type CompositeConfig struct {
	Mode     string        `yaml:"mode"`
	Children []ChildConfig `yaml:"children"`
}

type ChildConfig struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

// DefaultConfig is the RSI strategy with default parameters.
func DefaultConfig() Config {
	return Config{
		Name:          "rsi",
		RSI:           DefaultRSIParams(),
		MeanReversion: DefaultMeanReversionParams(),
		Composite:     CompositeConfig{Mode: string(ModeAll)},
	}
}

// Factory builds a strategy from configuration.
type Factory func(cfg Config) (Strategy, error)

// registry is filled in init because the composite factory calls back into New.
var registry map[string]Factory

func init() {
	registry = map[string]Factory{
		"skeleton": func(Config) (Strategy, error) { return NewSkeleton(), nil },
		"rsi": func(cfg Config) (Strategy, error) {
			s, err := NewRSI(cfg.RSI)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		"mean_reversion": func(cfg Config) (Strategy, error) {
			s, err := NewMeanReversion(cfg.MeanReversion)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		"composite": newCompositeFromConfig,
	}
}

// New looks up name in the registry.
func New(cfg Config) (Strategy, error) {
	f, ok := registry[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v): %w", cfg.Name, Names(), model.ErrConfiguration)
	}
	return f(cfg)
}

// Names lists the registered strategies.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func newCompositeFromConfig(cfg Config) (Strategy, error) {
	mode, err := ParseMode(cfg.Composite.Mode)
	if err != nil {
		return nil, err
	}
	var (
		children []Strategy
		weights  []float64
		weighted bool
	)
	for _, c := range cfg.Composite.Children {
		if c.Weight != 0 {
			weighted = true
		}
	}
	for _, c := range cfg.Composite.Children {
		if c.Name == "composite" {
			return nil, fmt.Errorf("composite strategies cannot be nested: %w", model.ErrConfiguration)
		}
		childCfg := cfg
		childCfg.Name = c.Name
		child, err := New(childCfg)
		if err != nil {
			return nil, fmt.Errorf("composite child %q: %w", c.Name, err)
		}
		children = append(children, child)
		if weighted || mode == ModeWeighted {
			weights = append(weights, c.Weight)
		}
	}
	c, err := NewComposite(mode, children, weights)
	if err != nil {
		return nil, err
	}
	return c, nil
}
