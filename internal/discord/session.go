package discord

import (
	"time"

	"rookbot/internal/config"

	"github.com/bwmarrin/discordgo"
)

func SendInteractionResponse(session *discordgo.Session, interaction *discordgo.Interaction, msg *discordgo.MessageSend) error {
	data := &discordgo.InteractionResponseData{
		Content: msg.Content,
	}
	if msg.Embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{msg.Embed}
	}

	return session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

// RespondText answers an interaction with a plain text message.
func RespondText(session *discordgo.Session, interaction *discordgo.Interaction, content string) error {
	return session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

// RespondEphemeral answers an interaction with a message only the invoker sees.
func RespondEphemeral(session *discordgo.Session, interaction *discordgo.Interaction, content string) error {
	return session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// RespondEmbed answers an interaction with a single embed.
func RespondEmbed(session *discordgo.Session, interaction *discordgo.Interaction, embed *discordgo.MessageEmbed) error {
	return session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

// Defer acknowledges an interaction so a slow handler can follow up later.
func Defer(session *discordgo.Session, interaction *discordgo.Interaction) error {
	return session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

// FollowUpText sends a follow-up message to a deferred interaction.
func FollowUpText(session *discordgo.Session, interaction *discordgo.Interaction, content string) error {
	_, err := session.FollowupMessageCreate(interaction, true, &discordgo.WebhookParams{
		Content: content,
	})
	return err
}

func SendReplyMessageTimed(session *discordgo.Session, channelID, messageID, content string, timeout time.Duration) error {
	msg, err := session.ChannelMessageSendReply(channelID, content, &discordgo.MessageReference{
		MessageID: messageID,
		ChannelID: channelID,
	})
	if err != nil {
		return err
	}

	time.AfterFunc(timeout, func() {
		if err := session.ChannelMessageDelete(channelID, msg.ID); err != nil {
			config.Logger.Warnf("Failed to delete message %s: %v", msg.ID, err)
		}
	})

	return nil
}
