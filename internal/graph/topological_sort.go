package graph

import (
	"fmt"
	"sort"
)

type Node interface {
	GetName() string
	GetDependencies() []string
}

// TopologicalSort orders nodes so that every node follows its
// dependencies. Ties are broken by name, so the order is stable.
func TopologicalSort(nodes map[string]Node) ([]string, error) {
	if err := ValidateGraph(nodes); err != nil {
		return nil, err
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(nodes))
	result := make([]string, 0, len(nodes))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("cycle detected in dependencies: %v -> %s", path, name)
		}

		state[name] = visiting
		deps := append([]string(nil), nodes[name].GetDependencies()...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		result = append(result, name)
		return nil
	}

	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func ValidateGraph(nodes map[string]Node) error {
	for name, node := range nodes {
		for _, dep := range node.GetDependencies() {
			if _, exists := nodes[dep]; !exists {
				return fmt.Errorf("node %s depends on %s which does not exist", name, dep)
			}
		}
	}
	return nil
}
