package providers

import (
	"fmt"
	"strings"
)

// ProviderFactory creates runtimes by name
type ProviderFactory struct {
	// RuntimeConfigs stores configuration for each runtime
	RuntimeConfigs map[string]Config
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(configs map[string]Config) *ProviderFactory {
	if configs == nil {
		configs = make(map[string]Config)
	}
	return &ProviderFactory{
		RuntimeConfigs: configs,
	}
}

// GetRuntime returns a runtime for the given name. Runtimes without an
// entry in RuntimeConfigs get a zero Config.
func (f *ProviderFactory) GetRuntime(name string) (Runtime, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = RuntimeSeq2Seq
	}
	config := f.RuntimeConfigs[name]

	switch name {
	case RuntimeSeq2Seq:
		return NewSeq2SeqRuntime(config), nil
	case RuntimeOpenAI:
		if config.ModelID == "" {
			return nil, fmt.Errorf("runtime %q requires a model id", name)
		}
		return NewOpenAIRuntime(config), nil
	case RuntimeExtractive:
		return NewExtractiveRuntime(0), nil
	default:
		return nil, fmt.Errorf("unknown runtime: %s", name)
	}
}
