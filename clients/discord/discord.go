package discord

import (
	"context"
	"fmt"
	"polysentry/clients/notifier"
	"polysentry/config"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// ChannelName is the Destination.Channel value for Discord channels.
const ChannelName = "discord"

// Discord rejects messages longer than this many characters.
const maxMessageLen = 2000

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordClient sends messages to Discord channels and receives bot commands
// from the gateway.
// Implements notifier.Channel interface.
type DiscordClient struct {
	logger  *zap.Logger
	session *discordgo.Session
	sender  messageSender
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	token := cfg.Discord.BotToken
	if token == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, Discord channel disabled")
		return &DiscordClient{logger: logger}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &DiscordClient{logger: logger}
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	logger.Info("discord bot initialized",
		zap.Bool("isProd", cfg.IsProd()),
		zap.String("defaultChannelID", cfg.DiscordChannelID()),
	)

	return &DiscordClient{
		logger:  logger,
		session: session,
		sender:  session,
	}
}

func (dc *DiscordClient) Name() string { return ChannelName }

func (dc *DiscordClient) Markup() notifier.Markup { return Markdown{} }

func (dc *DiscordClient) Enabled() bool { return dc.sender != nil }

// Send posts a message to a channel.
func (dc *DiscordClient) Send(ctx context.Context, channelID, text string) error {
	if !dc.Enabled() {
		return fmt.Errorf("discord not configured")
	}
	if channelID == "" {
		return fmt.Errorf("channelID is empty")
	}

	if runes := []rune(text); len(runes) > maxMessageLen {
		text = string(runes[:maxMessageLen-1]) + "…"
	}

	if _, err := dc.sender.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

// Listen opens the gateway connection and dispatches slash-prefixed messages to
// handler until ctx is done.
func (dc *DiscordClient) Listen(ctx context.Context, handler notifier.CommandHandler) error {
	if dc.session == nil {
		dc.logger.Info("discord command listener disabled")
		return nil
	}

	remove := dc.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		selfID := ""
		if s.State != nil && s.State.User != nil {
			selfID = s.State.User.ID
		}
		dc.handleMessage(ctx, selfID, m, handler)
	})
	defer remove()

	if err := dc.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	dc.logger.Info("discord command listener started")

	<-ctx.Done()
	return nil
}

func (dc *DiscordClient) handleMessage(
	ctx context.Context,
	selfID string,
	m *discordgo.MessageCreate,
	handler notifier.CommandHandler,
) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	if m.Author.Bot || m.Author.ID == selfID {
		return
	}

	name, args, ok := notifier.ParseCommand(m.Content)
	if !ok {
		return
	}

	reply := handler(ctx, notifier.Command{
		Name:   name,
		Args:   args,
		Source: notifier.Destination{Channel: ChannelName, ChatID: m.ChannelID},
		From:   m.Author.Username,
	})
	if reply == "" {
		return
	}

	if err := dc.Send(ctx, m.ChannelID, reply); err != nil {
		dc.logger.Warn("failed to send discord command reply",
			zap.String("command", name),
			zap.String("channelID", m.ChannelID),
			zap.Error(err),
		)
	}
}

// Close closes the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session != nil {
		return dc.session.Close()
	}
	return nil
}

// Markdown renders emphasis in Discord's markdown.
type Markdown struct{}

func (Markdown) Bold(s string) string { return "**" + escapeMarkdown(s) + "**" }

func (Markdown) Code(s string) string { return "`" + strings.ReplaceAll(s, "`", "'") + "`" }

func (Markdown) Escape(s string) string { return escapeMarkdown(s) }

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"*", "\\*",
		"_", "\\_",
		"`", "\\`",
		"~", "\\~",
		"|", "\\|",
	)
	return replacer.Replace(s)
}
