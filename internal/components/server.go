package components

import (
	"context"
	"fmt"

	"newswire/internal/config"
	"newswire/internal/server"
)

type ServerComponent struct {
	name     string
	config   config.MetricsConfig
	window   string
	included []string
	registry *Registry
	server   *server.Server
}

func NewServerComponent(name string, cfg config.MetricsConfig, window string, taxonomy *config.Taxonomy, registry *Registry) *ServerComponent {
	return &ServerComponent{
		name:     name,
		config:   cfg,
		window:   window,
		included: taxonomy.Included(),
		registry: registry,
	}
}

func (c *ServerComponent) Name() string {
	return ServerComponentName
}

func (c *ServerComponent) Dependencies() []string {
	return []string{StorageComponentName}
}

func (c *ServerComponent) Validate() error {
	if c.config.Port == "" {
		return fmt.Errorf("server: port is required")
	}
	return nil
}

func (c *ServerComponent) Initialize(ctx context.Context) error {
	storage, err := Lookup[*StorageComponent](c.registry, StorageComponentName)
	if err != nil {
		return err
	}

	c.server = server.New(c.name, server.Config{
		Port:     c.config.Port,
		FeedSize: c.config.FeedSize,
		Window:   config.Duration(c.window),
	}, storage.Store(), c.included)

	if err := c.server.Start(ctx); err != nil {
		return fmt.Errorf("server: failed to start: %w", err)
	}
	return nil
}

func (c *ServerComponent) Close(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}
