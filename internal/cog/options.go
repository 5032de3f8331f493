package cog

import (
	"rookbot/internal/config"

	"github.com/bwmarrin/discordgo"
)

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}

// subcommand unwraps a /command subcommand invocation into the subcommand
// name and its options.
func subcommand(data discordgo.ApplicationCommandInteractionData) (string, map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if len(data.Options) == 0 || data.Options[0].Type != discordgo.ApplicationCommandOptionSubCommand {
		return "", optionMap(data.Options)
	}
	sub := data.Options[0]
	return sub.Name, optionMap(sub.Options)
}

func stringOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if opt, ok := opts[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func intOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	if opt, ok := opts[name]; ok {
		return opt.IntValue()
	}
	return 0
}

func boolOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	if opt, ok := opts[name]; ok {
		return opt.BoolValue()
	}
	return false
}

func userOption(s *discordgo.Session, opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) *discordgo.User {
	if opt, ok := opts[name]; ok {
		return opt.UserValue(s)
	}
	return nil
}

func channelOption(s *discordgo.Session, opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) *discordgo.Channel {
	if opt, ok := opts[name]; ok {
		return opt.ChannelValue(s)
	}
	return nil
}

// registerOnReady registers commands as global application commands once the
// gateway reports Ready.
func registerOnReady(session *discordgo.Session, cogName string, commands []*discordgo.ApplicationCommand) {
	session.AddHandlerOnce(func(s *discordgo.Session, r *discordgo.Ready) {
		for _, cmd := range commands {
			if _, err := s.ApplicationCommandCreate(s.State.User.ID, "", cmd); err != nil {
				config.Logger.Errorf("Failed to register command '%s' for %s: %v", cmd.Name, cogName, err)
				continue
			}
			config.Logger.Infoln("Registered command:", cmd.Name)
		}
	})
}
