package cog

import (
	"rookbot/internal/config"
	"rookbot/internal/discord"
	"rookbot/internal/util"

	"github.com/bwmarrin/discordgo"
)

type CommandData struct {
	Enabled         bool              `json:"Enabled"`
	Description     string            `json:"Description"`
	AllowedChannels map[string]string `json:"Allowed_channels"` // Allowed channels (name and ID)
	Response        util.MessageData  `json:"Response"`
}

type CommandConfig struct {
	Enabled  bool                   `json:"Enabled"`
	Commands map[string]CommandData `json:"Commands"`
}

// CommandCog serves static slash commands defined in a JSON5 config file:
// each entry maps a command name to a canned embed or text response.
type CommandCog struct {
	ConfigName string

	Session *discordgo.Session
	Config  *CommandConfig
}

func (m *CommandCog) Name() string {
	return "CommandCog"
}

func (m *CommandCog) Init() error {
	var commandConfig CommandConfig
	if err := config.LoadConfig(m.ConfigName, &commandConfig); err != nil {
		return err
	}
	m.Config = &commandConfig

	if !commandConfig.Enabled {
		config.Logger.Infoln("Command feature disabled in configs")
		return nil
	}

	commands := make([]*discordgo.ApplicationCommand, 0, len(commandConfig.Commands))
	for name, command := range commandConfig.Commands {
		if !command.Enabled {
			continue
		}
		commands = append(commands, &discordgo.ApplicationCommand{
			Name:        name,
			Description: command.Description,
		})
	}
	registerOnReady(m.Session, m.Name(), commands)

	m.Session.AddHandler(m.HandleInteraction)

	config.Logger.Infoln(m.Name(), "initialized!")
	return nil
}

func (m *CommandCog) HandleInteraction(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	commandName := interaction.ApplicationCommandData().Name
	command, exists := m.Config.Commands[commandName]
	if !exists || !command.Enabled {
		return
	}

	if !isChannelAllowed(interaction.ChannelID, command.AllowedChannels) {
		_ = discord.RespondEphemeral(session, interaction.Interaction, "This command is not allowed in this channel.")
		return
	}

	ms, err := util.CreateMessageSend(command.Response)
	if err != nil {
		config.Logger.Errorln(err)
		return
	}

	if err := discord.SendInteractionResponse(session, interaction.Interaction, ms); err != nil {
		config.Logger.Errorln(err)
	}
}

func isChannelAllowed(channelID string, allowedChannels map[string]string) bool {
	if len(allowedChannels) == 0 {
		return true
	}

	for _, allowedID := range allowedChannels {
		if allowedID == channelID {
			return true
		}
	}
	return false
}
