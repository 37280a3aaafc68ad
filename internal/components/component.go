package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"newswire/internal/graph"
)

const (
	StorageComponentName    = "storage"
	LimiterComponentName    = "limiter"
	PlatformComponentName   = "platforms"
	ClassifierComponentName = "classifier"
	ServerComponentName     = "server"
)

type IComponent interface {
	Name() string
	Dependencies() []string
	Validate() error
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error
}

type Registry struct {
	components map[string]IComponent
	order      []string
}

func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]IComponent),
		order:      make([]string, 0),
	}
}

func (r *Registry) Register(component IComponent) error {
	name := component.Name()
	if _, exists := r.components[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}
	r.components[name] = component
	return nil
}

// Lookup returns a registered component as its concrete type.
func Lookup[T IComponent](r *Registry, name string) (T, error) {
	var zero T
	comp, exists := r.components[name]
	if !exists {
		return zero, fmt.Errorf("component %s is not registered", name)
	}
	typed, ok := comp.(T)
	if !ok {
		return zero, fmt.Errorf("component %s has type %T", name, comp)
	}
	return typed, nil
}

// InitializeAll validates every component, then initializes them in
// dependency order.
func (r *Registry) InitializeAll(ctx context.Context) error {
	nodes := make(map[string]graph.Node)
	for name, comp := range r.components {
		nodes[name] = &componentNode{comp: comp}
	}

	order, err := graph.TopologicalSort(nodes)
	if err != nil {
		return err
	}

	for _, name := range order {
		if err := r.components[name].Validate(); err != nil {
			return fmt.Errorf("component %s validation failed: %w", name, err)
		}
	}

	for _, name := range order {
		if err := r.components[name].Initialize(ctx); err != nil {
			_ = r.closeInitialized(ctx)
			return fmt.Errorf("component %s initialization failed: %w", name, err)
		}
		r.order = append(r.order, name)
		slog.Debug("Component initialized", "component", name)
	}

	return nil
}

type componentNode struct {
	comp IComponent
}

func (cn *componentNode) GetName() string {
	return cn.comp.Name()
}

func (cn *componentNode) GetDependencies() []string {
	return cn.comp.Dependencies()
}

// CloseAll closes initialized components in reverse order and reports
// every failure.
func (r *Registry) CloseAll(ctx context.Context) error {
	return r.closeInitialized(ctx)
}

func (r *Registry) closeInitialized(ctx context.Context) error {
	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if err := r.components[name].Close(ctx); err != nil {
			slog.Warn("Error closing component", "component", name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	r.order = r.order[:0]
	return errors.Join(errs...)
}
