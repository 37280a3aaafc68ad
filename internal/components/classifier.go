package components

import (
	"context"
	"log/slog"

	"newswire/internal/classifier"
	"newswire/internal/config"
)

type ClassifierComponent struct {
	config   config.ClassifierConfig
	labels   []string
	registry *Registry
	client   *classifier.Client
}

func NewClassifierComponent(cfg config.ClassifierConfig, taxonomy *config.Taxonomy, registry *Registry) *ClassifierComponent {
	return &ClassifierComponent{
		config:   cfg,
		labels:   taxonomy.Allowed(),
		registry: registry,
	}
}

func (c *ClassifierComponent) Name() string {
	return ClassifierComponentName
}

func (c *ClassifierComponent) Dependencies() []string {
	return []string{PlatformComponentName, LimiterComponentName}
}

func (c *ClassifierComponent) Validate() error {
	return nil
}

func (c *ClassifierComponent) Initialize(ctx context.Context) error {
	platforms, err := Lookup[*PlatformComponent](c.registry, PlatformComponentName)
	if err != nil {
		return err
	}
	limiter, err := Lookup[*LimiterComponent](c.registry, LimiterComponentName)
	if err != nil {
		return err
	}

	client, err := classifier.NewClient(platforms.Backend(), limiter.Limiter(), classifier.Options{
		Labels:              c.labels,
		BatchSize:           c.config.BatchSize,
		MaxRetries:          c.config.MaxRetries,
		RetryDelay:          config.Duration(c.config.RetryDelay),
		DelayBetweenBatches: config.Duration(c.config.DelayBetweenBatches),
		Timeout:             config.Duration(c.config.Timeout),
		Temperature:         c.config.Temperature,
		PromptTemplate:      c.config.PromptTemplate,
	}, slog.Default())
	if err != nil {
		return err
	}

	c.client = client
	return nil
}

func (c *ClassifierComponent) Close(ctx context.Context) error {
	return nil
}

func (c *ClassifierComponent) Client() *classifier.Client {
	return c.client
}
