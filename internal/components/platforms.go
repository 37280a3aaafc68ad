package components

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"newswire/internal/classifier"
	"newswire/internal/config"
	"newswire/internal/platforms"
)

// PlatformComponent owns the model transport and the optional Discord
// delivery channel.
type PlatformComponent struct {
	classifierCfg config.ClassifierConfig
	summaryCfg    config.SummaryConfig
	backend       classifier.Backend
	discord       *platforms.DiscordPlatform
}

func NewPlatformComponent(classifierCfg config.ClassifierConfig, summaryCfg config.SummaryConfig) *PlatformComponent {
	return &PlatformComponent{
		classifierCfg: classifierCfg,
		summaryCfg:    summaryCfg,
	}
}

func (c *PlatformComponent) Name() string {
	return PlatformComponentName
}

func (c *PlatformComponent) Dependencies() []string {
	return []string{}
}

func (c *PlatformComponent) Validate() error {
	if c.classifierCfg.Backend == "openai" && os.Getenv(c.classifierCfg.APIKeyEnv) == "" {
		return fmt.Errorf("platforms: %s is not set", c.classifierCfg.APIKeyEnv)
	}
	return nil
}

func (c *PlatformComponent) Initialize(ctx context.Context) error {
	switch c.classifierCfg.Backend {
	case "ollama":
		p, err := platforms.NewOllamaPlatform(c.classifierCfg.BaseURL, c.classifierCfg.Model)
		if err != nil {
			return err
		}
		c.backend = p
	default:
		p, err := platforms.NewOpenAIPlatform(os.Getenv(c.classifierCfg.APIKeyEnv), c.classifierCfg.BaseURL, c.classifierCfg.Model)
		if err != nil {
			return err
		}
		c.backend = p
	}
	slog.Info("Classifier backend configured", "backend", c.backend.Name(), "model", c.classifierCfg.Model)

	if !c.summaryCfg.Enabled || c.summaryCfg.DiscordChannel == "" {
		return nil
	}

	env := c.summaryCfg.DiscordToken
	if env == "" {
		env = "DISCORD_BOT_TOKEN"
	}
	discord, err := platforms.NewDiscordPlatform(os.Getenv(env), c.summaryCfg.DiscordChannel, 0)
	if err != nil {
		return fmt.Errorf("failed to create discord platform: %w", err)
	}
	if err := discord.Initialize(ctx); err != nil {
		return fmt.Errorf("discord platform initialization failed: %w", err)
	}
	c.discord = discord
	return nil
}

func (c *PlatformComponent) Close(ctx context.Context) error {
	if c.discord != nil {
		return c.discord.Close(ctx)
	}
	return nil
}

func (c *PlatformComponent) Backend() classifier.Backend {
	return c.backend
}

// Discord returns nil when summary delivery is not configured.
func (c *PlatformComponent) Discord() *platforms.DiscordPlatform {
	return c.discord
}
