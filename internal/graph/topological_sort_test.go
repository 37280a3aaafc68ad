package graph

import (
	"strings"
	"testing"
)

type node struct {
	name string
	deps []string
}

func (n node) GetName() string           { return n.name }
func (n node) GetDependencies() []string { return n.deps }

func graphOf(nodes ...node) map[string]Node {
	out := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		out[n.name] = n
	}
	return out
}

func TestTopologicalSortOrdersDependenciesFirst(t *testing.T) {
	t.Parallel()

	order, err := TopologicalSort(graphOf(
		node{name: "server", deps: []string{"storage"}},
		node{name: "classifier", deps: []string{"limiter", "platforms"}},
		node{name: "limiter"},
		node{name: "platforms"},
		node{name: "storage"},
	))
	if err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}

	want := "limiter,platforms,classifier,storage,server"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestTopologicalSortDetectsCycle(t *testing.T) {
	t.Parallel()

	_, err := TopologicalSort(graphOf(
		node{name: "a", deps: []string{"b"}},
		node{name: "b", deps: []string{"a"}},
	))
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error = %v, want cycle", err)
	}
}

func TestTopologicalSortRejectsUnknownDependency(t *testing.T) {
	t.Parallel()

	if _, err := TopologicalSort(graphOf(node{name: "a", deps: []string{"missing"}})); err == nil {
		t.Error("expected error for unknown dependency")
	}
}
