package clients

import (
	"polysentry/clients/discord"
	"polysentry/clients/notifier"
	"polysentry/clients/polymarketapi"
	"polysentry/clients/telegram"
	"polysentry/config"

	"go.uber.org/zap"
)

type Clients struct {
	Logger *zap.Logger

	Discord    *discord.DiscordClient
	Telegram   *telegram.TelegramClient
	Notifier   *notifier.MultiNotifier // Routes messages to configured channels
	Polymarket *polymarketapi.PolymarketApiClient
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	discordClient := discord.NewDiscordClient(logger, cfg)
	telegramClient := telegram.NewTelegramClient(logger, cfg)

	return &Clients{
		Logger:     logger,
		Discord:    discordClient,
		Telegram:   telegramClient,
		Notifier:   notifier.NewMultiNotifier(telegramClient, discordClient),
		Polymarket: polymarketapi.NewPolymarketApiClient(logger, cfg),
	}
}

// Close releases channel resources.
func (c *Clients) Close() error {
	return c.Notifier.Close()
}
