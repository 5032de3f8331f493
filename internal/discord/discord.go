package discord

import (
	"fmt"

	"rookbot/internal/config"

	"github.com/bwmarrin/discordgo"
)

var Session *discordgo.Session

func Init() error {
	var err error
	Session, err = discordgo.New("Bot " + config.Configuration.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	Session.Identify.Intents = discordgo.IntentsAll
	return nil
}

func InitConnection() error {
	if Session == nil {
		return fmt.Errorf("discord session not initialized")
	}
	if err := Session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}
	if config.Configuration.BotStatus != "" {
		if err := Session.UpdateGameStatus(0, config.Configuration.BotStatus); err != nil {
			config.Logger.Warnln("Failed to set bot status:", err)
		}
	}
	return nil
}
