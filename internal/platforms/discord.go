package platforms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const discordMessageLimit = 2000

// DiscordPlatform posts plain messages to one channel over the REST API.
type DiscordPlatform struct {
	botToken  string
	channelID string
	sleep     time.Duration
	session   *discordgo.Session
}

func NewDiscordPlatform(botToken, channelID string, sleep time.Duration) (*DiscordPlatform, error) {
	if botToken == "" {
		return nil, fmt.Errorf("discord platform: bot token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("discord platform: channel is required")
	}
	if sleep <= 0 {
		sleep = time.Second
	}

	return &DiscordPlatform{
		botToken:  botToken,
		channelID: channelID,
		sleep:     sleep,
	}, nil
}

func (p *DiscordPlatform) Initialize(ctx context.Context) error {
	session, err := discordgo.New("Bot " + p.botToken)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	p.session = session
	return nil
}

func (p *DiscordPlatform) Close(ctx context.Context) error {
	if p.session != nil {
		return p.session.Close()
	}
	return nil
}

// Send posts content, split into chunks below the message size limit.
func (p *DiscordPlatform) Send(ctx context.Context, content string) error {
	if p.session == nil {
		return fmt.Errorf("discord platform is not initialized")
	}

	chunks := splitMessage(content, discordMessageLimit)
	for i, chunk := range chunks {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.sleep):
			}
		}
		if _, err := p.session.ChannelMessageSend(p.channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
	}
	return nil
}

// splitMessage cuts on line boundaries where possible.
func splitMessage(content string, limit int) []string {
	var chunks []string
	for len(content) > limit {
		cut := strings.LastIndex(content[:limit], "\n")
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, content[:cut])
		content = strings.TrimLeft(content[cut:], "\n")
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}
