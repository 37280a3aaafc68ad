package rss

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	loaders = make(map[string]FeedLoader)
	mu      sync.RWMutex
)

func RegisterLoader(loaderType string, loader FeedLoader) {
	mu.Lock()
	defer mu.Unlock()
	loaders[loaderType] = loader
}

func GetLoader(loaderType string) (FeedLoader, error) {
	mu.RLock()
	defer mu.RUnlock()

	if loader, exists := loaders[loaderType]; exists {
		return loader, nil
	}

	names := make([]string, 0, len(loaders))
	for name := range loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("unknown feed loader %q (available: %s)", loaderType, strings.Join(names, ", "))
}
