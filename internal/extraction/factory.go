package extraction

import "fmt"

// ProviderFactory builds a provider from its configuration. The concrete
// factories live in the providers subpackages; wiring them through a map
// keeps this package free of provider imports (and import cycles).
type ProviderFactory func(name string, cfg ProviderConfig) (Provider, error)

// BuildStrategies turns the configured strategy list into providers. The
// factories map is keyed by ProviderConfig.Type.
func BuildStrategies(cfg Config, factories map[string]ProviderFactory) ([]Strategy, error) {
	if len(cfg.Strategies) == 0 {
		return nil, fmt.Errorf("extraction requires at least one strategy")
	}

	strategies := make([]Strategy, 0, len(cfg.Strategies))
	for i, sc := range cfg.Strategies {
		factory, ok := factories[sc.Type]
		if !ok {
			return nil, fmt.Errorf("unknown extraction provider type %q", sc.Type)
		}
		name := fmt.Sprintf("%s-%d", sc.Type, i)
		p, err := factory(name, sc)
		if err != nil {
			return nil, fmt.Errorf("build strategy %d (%s): %w", i, sc.Type, err)
		}
		strategies = append(strategies, Strategy{Provider: p, Model: sc.Model})
	}
	return strategies, nil
}
