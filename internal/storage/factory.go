package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"newswire/internal/config"
)

var factoryFuncs = map[string]func(string) (StorageInterface, error){}

func RegisterFactory(storageType string, fn func(string) (StorageInterface, error)) {
	factoryFuncs[storageType] = fn
}

func New(ctx context.Context, cfg config.StorageConfig) (StorageInterface, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "sqlite"
	}

	fn, exists := factoryFuncs[storageType]
	if !exists {
		return nil, fmt.Errorf("unsupported storage type: %s (registered: %s)", storageType, registered())
	}

	return fn(cfg.Path)
}

func registered() string {
	names := make([]string, 0, len(factoryFuncs))
	for name := range factoryFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
