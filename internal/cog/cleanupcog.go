package cog

import (
	"fmt"

	"rookbot/internal/config"
	"rookbot/internal/discord"
	"rookbot/internal/util"

	"github.com/bwmarrin/discordgo"
)

// CleanupCog bulk-deletes channel messages. Messages older than the
// bulk-delete cutoff (two weeks) are left alone.
type CleanupCog struct {
	Session *discordgo.Session
}

func (c *CleanupCog) Name() string {
	return "CleanupCog"
}

func (c *CleanupCog) Init() error {
	manageMessages := int64(discordgo.PermissionManageMessages)

	countOption := func() *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionInteger, Name: "number",
			Description: "How many messages to delete", Required: true,
		}
	}

	registerOnReady(c.Session, c.Name(), []*discordgo.ApplicationCommand{
		{
			Name:                     "cleanup",
			Description:              "Delete messages in this channel",
			DefaultMemberPermissions: &manageMessages,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "messages",
					Description: "Delete the last messages",
					Options:     []*discordgo.ApplicationCommandOption{countOption()},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "user",
					Description: "Delete messages from a user",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Whose messages to delete", Required: true},
						countOption(),
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "bot",
					Description: "Delete messages sent by bots",
					Options:     []*discordgo.ApplicationCommandOption{countOption()},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "self",
					Description: "Delete your own messages",
					Options:     []*discordgo.ApplicationCommandOption{countOption()},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "before",
					Description: "Delete messages before a given message",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "message_id", Description: "Delete messages older than this message", Required: true},
						countOption(),
					},
				},
			},
		},
	})

	c.Session.AddHandler(c.handleInteraction)

	config.Logger.Infoln(c.Name(), "initialized!")
	return nil
}

func (c *CleanupCog) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != "cleanup" {
		return
	}
	if i.GuildID == "" || i.Member == nil {
		_ = discord.RespondEphemeral(s, i.Interaction, "This command can only be used in a server.")
		return
	}

	sub, opts := subcommand(data)
	number := int(intOption(opts, "number"))
	if number <= 0 {
		_ = discord.RespondEphemeral(s, i.Interaction, "The number of messages must be positive.")
		return
	}

	options := &util.ClearMessagesOptions{Limit: number}
	switch sub {
	case "messages":
	case "user":
		target := userOption(s, opts, "user")
		options.Whitelist = []string{target.ID}
	case "bot":
		options.BotsOnly = true
	case "self":
		options.Whitelist = []string{i.Member.User.ID}
	case "before":
		options.Before = stringOption(opts, "message_id")
	default:
		return
	}

	// Deleting can take a while with paging, so acknowledge first.
	if err := discord.Defer(s, i.Interaction); err != nil {
		config.Logger.Errorln("Failed to defer cleanup response:", err)
		return
	}

	deleted, err := util.ClearMessagesOnChannel(s, i.ChannelID, options)
	if err != nil {
		config.Logger.Errorln("Cleanup failed:", err)
		_ = discord.FollowUpText(s, i.Interaction, fmt.Sprintf("Deleted %d messages before running into an error.", deleted))
		return
	}
	_ = discord.FollowUpText(s, i.Interaction, fmt.Sprintf("Deleted %d messages.", deleted))
}
