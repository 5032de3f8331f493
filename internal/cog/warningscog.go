package cog

import (
	"encoding/json"
	"fmt"
	"strings"

	"rookbot/internal/config"
	"rookbot/internal/discord"
	"rookbot/internal/modlog"
	"rookbot/internal/store"
	"rookbot/internal/util"

	"github.com/bwmarrin/discordgo"
)

// deletedModerator is recorded in place of a moderator id once that
// moderator's data has been deleted.
const deletedModerator = "0xDE1"

const warnEmbedColor = 0xF1C40F

type warnReason struct {
	Description string `json:"description"`
}

type warnEntry struct {
	Description string `json:"description"`
	Mod         string `json:"mod"`
}

// WarningsCog warns misbehaving users and records the warnings per member.
type WarningsCog struct {
	Session *discordgo.Session
	Store   *store.Store
	ModLog  *modlog.ModLog

	conf *store.Conf
}

func (w *WarningsCog) Name() string {
	return "WarningsCog"
}

func (w *WarningsCog) Init() error {
	w.bindStore()

	w.ModLog.RegisterCasetypes([]modlog.Casetype{
		{Name: "warning", Default: true, Emoji: "⚠️", Title: "Warning"},
		{Name: "unwarned", Default: true, Emoji: "⚠️", Title: "Unwarned"},
	})

	registerOnReady(w.Session, w.Name(), w.commands())
	w.Session.AddHandler(w.handleInteraction)

	config.Logger.Infoln(w.Name(), "initialized!")
	return nil
}

func (w *WarningsCog) bindStore() {
	w.conf = w.Store.GetConf("Warnings")
	w.conf.RegisterGuild(map[string]interface{}{
		"reasons":              map[string]warnReason{},
		"allow_custom_reasons": true,
		"toggle_dm":            true,
		"show_mod":             true,
		"warn_channel":         "",
		"toggle_channel":       false,
	})
	w.conf.RegisterMember(map[string]interface{}{
		"warnings": map[string]warnEntry{},
	})
}

func (w *WarningsCog) commands() []*discordgo.ApplicationCommand {
	banMembers := int64(discordgo.PermissionBanMembers)
	admin := int64(discordgo.PermissionAdministrator)

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "warn",
			Description:              "Warn the user for the specified reason",
			DefaultMemberPermissions: &banMembers,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "member", Description: "Member to warn", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Registered reason name or a custom reason", Required: true},
			},
		},
		{
			Name:                     "unwarn",
			Description:              "Remove a warning from a user",
			DefaultMemberPermissions: &banMembers,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "member", Description: "Member to unwarn", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "warn_id", Description: "Id of the warning to remove", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for removing the warning"},
			},
		},
		{
			Name:                     "warnings",
			Description:              "List the warnings for the specified user",
			DefaultMemberPermissions: &admin,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "member", Description: "Member to list warnings for", Required: true},
			},
		},
		{
			Name:        "mywarnings",
			Description: "List warnings for yourself",
		},
		{
			Name:                     "warningset",
			Description:              "Manage settings for warnings",
			DefaultMemberPermissions: &admin,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "senddm",
					Description: "Set whether warnings should be sent to users in DMs",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Send DMs", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "showmoderator",
					Description: "Set whether the warning DM names the moderator who issued it",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Show the moderator", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "warnchannel",
					Description: "Set the channel warnings are sent to; leave empty to use the invoking channel",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Warn channel"},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "usewarnchannel",
					Description: "Set whether warnings are sent to the configured warn channel",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Use the warn channel", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "allowcustomreasons",
					Description: "Set whether unregistered reasons are allowed",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Allow custom reasons", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "addreason",
					Description: "Register a warning reason",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Reason name", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "description", Description: "Reason description", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "delreason",
					Description: "Remove a registered warning reason",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Reason name", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "deleteuserdata",
					Description: "Delete a user's warning data in every server (bot owner only)",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "user_id", Description: "Id of the user whose data to delete", Required: true},
					},
				},
			},
		},
	}
}

func (w *WarningsCog) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case "warn":
		w.handleWarn(s, i, data)
	case "unwarn":
		w.handleUnwarn(s, i, data)
	case "warnings":
		w.handleWarnings(s, i, data)
	case "mywarnings":
		w.handleMyWarnings(s, i)
	case "warningset":
		w.handleWarningset(s, i, data)
	}
}

func (w *WarningsCog) guildScope(guildID string) *store.Scope {
	return w.conf.Guild(guildID)
}

func (w *WarningsCog) handleWarn(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if i.GuildID == "" || i.Member == nil {
		_ = discord.RespondEphemeral(s, i.Interaction, "This command can only be used in a server.")
		return
	}

	opts := optionMap(data.Options)
	target := userOption(s, opts, "member")
	reason := stringOption(opts, "reason")
	invoker := i.Member

	if target.ID == invoker.User.ID {
		_ = discord.RespondEphemeral(s, i.Interaction, "You cannot warn yourself.")
		return
	}
	if target.Bot {
		_ = discord.RespondEphemeral(s, i.Interaction, "You cannot warn other bots.")
		return
	}

	guild, err := s.State.Guild(i.GuildID)
	if err != nil {
		guild, err = s.Guild(i.GuildID)
		if err != nil {
			_ = discord.RespondEphemeral(s, i.Interaction, "Failed to look up the server.")
			return
		}
	}
	if target.ID == guild.OwnerID {
		_ = discord.RespondEphemeral(s, i.Interaction, "You cannot warn the server owner.")
		return
	}

	targetMember, err := s.GuildMember(i.GuildID, target.ID)
	if err != nil {
		_ = discord.RespondEphemeral(s, i.Interaction, "That user is not a member of this server.")
		return
	}
	if !util.HierarchyAllows(s, i.GuildID, invoker, targetMember) {
		_ = discord.RespondEphemeral(s, i.Interaction,
			"The person you're trying to warn is equal or higher than you in the discord hierarchy, you cannot warn them.")
		return
	}

	gs := w.guildScope(i.GuildID)

	var reasons map[string]warnReason
	if err := gs.Get("reasons", &reasons); err != nil {
		config.Logger.Errorln("Failed to load warning reasons:", err)
		return
	}

	description := ""
	if registered, ok := reasons[strings.ToLower(reason)]; ok {
		description = registered.Description
	} else {
		var customAllowed bool
		_ = gs.Get("allow_custom_reasons", &customAllowed)
		if !customAllowed {
			_ = discord.RespondEphemeral(s, i.Interaction,
				"That is not a registered reason! Use `/warningset allowcustomreasons` to enable custom reasons.")
			return
		}
		description = reason
	}

	var (
		sendDM        bool
		showMod       bool
		toggleChannel bool
		warnChannel   string
	)
	_ = gs.Get("toggle_dm", &sendDM)
	_ = gs.Get("show_mod", &showMod)
	_ = gs.Get("toggle_channel", &toggleChannel)
	_ = gs.Get("warn_channel", &warnChannel)

	dmFailed := false
	if sendDM {
		title := "Warning"
		if showMod {
			title = fmt.Sprintf("You received a warning by %s in the following guild: %s", invoker.User.Username, guild.Name)
		}
		if err := w.dmMember(target.ID, guild.Name, title, description); err != nil {
			dmFailed = true
		}
	}

	err = w.conf.Member(i.GuildID, target.ID).Update("warnings", func(raw json.RawMessage) (interface{}, error) {
		warns := map[string]warnEntry{}
		if raw != nil {
			if err := json.Unmarshal(raw, &warns); err != nil {
				return nil, err
			}
		}
		warns[i.ID] = warnEntry{Description: description, Mod: invoker.User.ID}
		return warns, nil
	})
	if err != nil {
		config.Logger.Errorln("Failed to record warning:", err)
		_ = discord.RespondEphemeral(s, i.Interaction, "Failed to record the warning.")
		return
	}

	caseReason := fmt.Sprintf("%s\n\nUse `/unwarn %s %s` to remove this warning.", description, target.ID, i.ID)
	if _, err := w.ModLog.CreateCase(i.GuildID, "warning", target.ID, invoker.User.ID, caseReason); err != nil {
		config.Logger.Errorln("Failed to create warning case:", err)
	}

	content := fmt.Sprintf("%s has been warned.", target.Mention())
	if dmFailed {
		content = fmt.Sprintf("A warning for %s has been issued, but I wasn't able to send them a warn message.", target.Mention())
	}

	channelID, announce := warnDestination(toggleChannel, warnChannel)
	if !announce {
		_ = discord.RespondText(s, i.Interaction, content)
		return
	}

	title := "Warning"
	if showMod {
		title = fmt.Sprintf("Warning from %s", invoker.User.Username)
	}
	embed := &discordgo.MessageEmbed{Title: title, Description: description, Color: warnEmbedColor}

	if channelID == "" {
		// No warn channel configured: the embed rides on the response in
		// the invoking channel.
		_ = discord.SendInteractionResponse(s, i.Interaction, &discordgo.MessageSend{
			Content: content,
			Embed:   embed,
		})
		return
	}

	if _, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("%s has been warned.", target.Mention()),
		Embed:   embed,
	}); err != nil {
		config.Logger.Warnln("Failed to post to warn channel:", err)
	}
	_ = discord.RespondText(s, i.Interaction, content)
}

// warnDestination resolves where the warning announcement embed goes: the
// configured warn channel, or "" for the invoking channel. announce is false
// when channel announcements are disabled.
func warnDestination(toggleChannel bool, warnChannel string) (channelID string, announce bool) {
	if !toggleChannel {
		return "", false
	}
	return warnChannel, true
}

func (w *WarningsCog) dmMember(userID, guildName, title, description string) error {
	ch, err := w.Session.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = w.Session.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
		Content: fmt.Sprintf("You have received a warning in %s.", guildName),
		Embed:   &discordgo.MessageEmbed{Title: title, Description: description, Color: warnEmbedColor},
	})
	return err
}

func (w *WarningsCog) handleUnwarn(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if i.GuildID == "" || i.Member == nil {
		_ = discord.RespondEphemeral(s, i.Interaction, "This command can only be used in a server.")
		return
	}

	opts := optionMap(data.Options)
	target := userOption(s, opts, "member")
	warnID := stringOption(opts, "warn_id")
	reason := stringOption(opts, "reason")

	if target.ID == i.Member.User.ID {
		_ = discord.RespondEphemeral(s, i.Interaction, "You cannot remove warnings from yourself.")
		return
	}

	found := false
	err := w.conf.Member(i.GuildID, target.ID).Update("warnings", func(raw json.RawMessage) (interface{}, error) {
		warns := map[string]warnEntry{}
		if raw != nil {
			if err := json.Unmarshal(raw, &warns); err != nil {
				return nil, err
			}
		}
		if _, ok := warns[warnID]; ok {
			found = true
			delete(warns, warnID)
		}
		return warns, nil
	})
	if err != nil {
		_ = discord.RespondEphemeral(s, i.Interaction, "Failed to remove the warning.")
		return
	}
	if !found {
		_ = discord.RespondEphemeral(s, i.Interaction, "That warning doesn't exist!")
		return
	}

	if _, err := w.ModLog.CreateCase(i.GuildID, "unwarned", target.ID, i.Member.User.ID, reason); err != nil {
		config.Logger.Errorln("Failed to create unwarned case:", err)
	}
	_ = discord.RespondText(s, i.Interaction, fmt.Sprintf("Removed warning `%s` from %s.", warnID, target.Mention()))
}

func (w *WarningsCog) handleWarnings(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if i.GuildID == "" {
		_ = discord.RespondEphemeral(s, i.Interaction, "This command can only be used in a server.")
		return
	}

	opts := optionMap(data.Options)
	target := userOption(s, opts, "member")

	embed, empty := w.warningsEmbed(i.GuildID, target.ID, fmt.Sprintf("Warnings for %s", target.Username))
	if empty {
		_ = discord.RespondText(s, i.Interaction, "That user has no warnings!")
		return
	}
	_ = discord.RespondEmbed(s, i.Interaction, embed)
}

func (w *WarningsCog) handleMyWarnings(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" || i.Member == nil {
		_ = discord.RespondEphemeral(s, i.Interaction, "This command can only be used in a server.")
		return
	}

	user := i.Member.User
	embed, empty := w.warningsEmbed(i.GuildID, user.ID, fmt.Sprintf("Warnings for %s", user.Username))
	if empty {
		_ = discord.RespondEphemeral(s, i.Interaction, "You have no warnings!")
		return
	}
	_ = discord.RespondEmbed(s, i.Interaction, embed)
}

func (w *WarningsCog) warningsEmbed(guildID, userID, title string) (*discordgo.MessageEmbed, bool) {
	var warns map[string]warnEntry
	if err := w.conf.Member(guildID, userID).Get("warnings", &warns); err != nil || len(warns) == 0 {
		return nil, true
	}

	embed := &discordgo.MessageEmbed{Title: title, Color: warnEmbedColor}
	for id, entry := range warns {
		mod := "Deleted Moderator"
		if entry.Mod != deletedModerator {
			mod = fmt.Sprintf("<@%s>", entry.Mod)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("ID: %s", id),
			Value: fmt.Sprintf("%s\nissued by %s", entry.Description, mod),
		})
	}
	return embed, false
}

func (w *WarningsCog) handleWarningset(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if i.GuildID == "" {
		_ = discord.RespondEphemeral(s, i.Interaction, "This command can only be used in a server.")
		return
	}

	sub, opts := subcommand(data)
	gs := w.guildScope(i.GuildID)

	switch sub {
	case "senddm":
		enabled := boolOption(opts, "enabled")
		if err := gs.Set("toggle_dm", enabled); err != nil {
			_ = discord.RespondEphemeral(s, i.Interaction, "Failed to save the setting.")
			return
		}
		if enabled {
			_ = discord.RespondText(s, i.Interaction, "I will now try to send warnings to users DMs.")
		} else {
			_ = discord.RespondText(s, i.Interaction, "Warnings will no longer be sent to users DMs.")
		}

	case "showmoderator":
		enabled := boolOption(opts, "enabled")
		if err := gs.Set("show_mod", enabled); err != nil {
			_ = discord.RespondEphemeral(s, i.Interaction, "Failed to save the setting.")
			return
		}
		if enabled {
			_ = discord.RespondText(s, i.Interaction, "I will include the name of the moderator who issued the warning when sending a DM to a user.")
		} else {
			_ = discord.RespondText(s, i.Interaction, "I will not include the name of the moderator who issued the warning when sending a DM to a user.")
		}

	case "warnchannel":
		channel := channelOption(s, opts, "channel")
		if channel != nil {
			if err := gs.Set("warn_channel", channel.ID); err != nil {
				_ = discord.RespondEphemeral(s, i.Interaction, "Failed to save the setting.")
				return
			}
			_ = discord.RespondText(s, i.Interaction, fmt.Sprintf("The warn channel has been set to <#%s>.", channel.ID))
			return
		}
		if err := gs.Set("warn_channel", ""); err != nil {
			_ = discord.RespondEphemeral(s, i.Interaction, "Failed to save the setting.")
			return
		}
		_ = discord.RespondText(s, i.Interaction, "Warnings will now be sent in the channel command was used in.")

	case "usewarnchannel":
		enabled := boolOption(opts, "enabled")
		if err := gs.Set("toggle_channel", enabled); err != nil {
			_ = discord.RespondEphemeral(s, i.Interaction, "Failed to save the setting.")
			return
		}
		if enabled {
			var channelID string
			_ = gs.Get("warn_channel", &channelID)
			if channelID != "" {
				_ = discord.RespondText(s, i.Interaction, fmt.Sprintf("Warnings will now be sent to <#%s>.", channelID))
			} else {
				_ = discord.RespondText(s, i.Interaction, "Warnings will now be sent in the channel command was used in.")
			}
		} else {
			_ = discord.RespondText(s, i.Interaction, "Toggle channel has been disabled.")
		}

	case "allowcustomreasons":
		enabled := boolOption(opts, "enabled")
		if err := gs.Set("allow_custom_reasons", enabled); err != nil {
			_ = discord.RespondEphemeral(s, i.Interaction, "Failed to save the setting.")
			return
		}
		if enabled {
			_ = discord.RespondText(s, i.Interaction, "Custom reasons are now allowed.")
		} else {
			_ = discord.RespondText(s, i.Interaction, "Only registered reasons are allowed now.")
		}

	case "addreason":
		name := strings.ToLower(stringOption(opts, "name"))
		description := stringOption(opts, "description")
		err := gs.Update("reasons", func(raw json.RawMessage) (interface{}, error) {
			reasons := map[string]warnReason{}
			if raw != nil {
				if err := json.Unmarshal(raw, &reasons); err != nil {
					return nil, err
				}
			}
			reasons[name] = warnReason{Description: description}
			return reasons, nil
		})
		if err != nil {
			_ = discord.RespondEphemeral(s, i.Interaction, "Failed to save the reason.")
			return
		}
		_ = discord.RespondText(s, i.Interaction, fmt.Sprintf("Registered reason `%s`.", name))

	case "delreason":
		name := strings.ToLower(stringOption(opts, "name"))
		found := false
		err := gs.Update("reasons", func(raw json.RawMessage) (interface{}, error) {
			reasons := map[string]warnReason{}
			if raw != nil {
				if err := json.Unmarshal(raw, &reasons); err != nil {
					return nil, err
				}
			}
			if _, ok := reasons[name]; ok {
				found = true
				delete(reasons, name)
			}
			return reasons, nil
		})
		if err != nil {
			_ = discord.RespondEphemeral(s, i.Interaction, "Failed to remove the reason.")
			return
		}
		if !found {
			_ = discord.RespondEphemeral(s, i.Interaction, "That reason is not registered.")
			return
		}
		_ = discord.RespondText(s, i.Interaction, fmt.Sprintf("Removed reason `%s`.", name))

	case "deleteuserdata":
		if !util.IsBotOwner(invokerID(i)) {
			_ = discord.RespondEphemeral(s, i.Interaction, "Only the bot owner can delete user data.")
			return
		}
		userID := stringOption(opts, "user_id")
		if err := w.DeleteUserData(userID); err != nil {
			config.Logger.Errorln("Failed to delete user data:", err)
			_ = discord.RespondEphemeral(s, i.Interaction, "Failed to delete the user's data.")
			return
		}
		_ = discord.RespondText(s, i.Interaction, fmt.Sprintf("Deleted all warning data for user `%s`.", userID))
	}
}

// DeleteUserData removes the user's warnings everywhere and re-points
// warnings they issued at the deleted-moderator sentinel.
func (w *WarningsCog) DeleteUserData(userID string) error {
	if err := w.conf.ClearMemberData(userID); err != nil {
		return err
	}

	for guildID, users := range w.conf.AllMembers() {
		for memberID, values := range users {
			raw, ok := values["warnings"]
			if !ok {
				continue
			}

			var warns map[string]warnEntry
			if err := json.Unmarshal(raw, &warns); err != nil {
				return fmt.Errorf("parsing warnings for %s/%s: %w", guildID, memberID, err)
			}

			changed := false
			for id, entry := range warns {
				if entry.Mod == userID {
					entry.Mod = deletedModerator
					warns[id] = entry
					changed = true
				}
			}
			if !changed {
				continue
			}
			if err := w.conf.Member(guildID, memberID).Set("warnings", warns); err != nil {
				return err
			}
		}
	}
	return nil
}
