package analyzer

import (
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/fieldscout/logging"
)

// Constructor builds an Analyzer from its free-form config attributes.
type Constructor func(attrs map[string]interface{}, logger logging.Logger) (Analyzer, error)

var (
	registryMu   sync.RWMutex
	constructors = map[string]Constructor{}
)

// Register makes an analyzer type available to New. Registering the same type twice panics.
func Register(typeName string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := constructors[typeName]; ok {
		panic(errors.Errorf("analyzer type %q already registered", typeName))
	}
	constructors[typeName] = constructor
}

// RegisteredTypes lists the registered analyzer types.
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(constructors))
	for name := range constructors {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// New constructs the analyzer registered under typeName.
func New(typeName string, attrs map[string]interface{}, logger logging.Logger) (Analyzer, error) {
	registryMu.RLock()
	constructor, ok := constructors[typeName]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown analyzer type %q (known: %v)", typeName, RegisteredTypes())
	}
	return constructor(attrs, logger.Sublogger(typeName))
}

// DecodeAttributes decodes free-form attributes into a typed config using its json tags.
// Durations may be given as strings such as "30s".
func DecodeAttributes(attrs map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return errors.Wrap(decoder.Decode(attrs), "cannot decode analyzer attributes")
}
