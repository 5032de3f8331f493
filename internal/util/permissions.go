package util

import (
	"rookbot/internal/config"

	"github.com/bwmarrin/discordgo"
)

// IsBotOwner reports whether the user is the configured bot owner.
func IsBotOwner(userID string) bool {
	return userID != "" && userID == config.Configuration.OwnerID
}

// TopRolePosition returns the highest role position a member holds.
// Members with no roles sit at the @everyone position (0).
func TopRolePosition(guild *discordgo.Guild, member *discordgo.Member) int {
	positions := make(map[string]int, len(guild.Roles))
	for _, role := range guild.Roles {
		positions[role.ID] = role.Position
	}

	top := 0
	for _, roleID := range member.Roles {
		if pos, ok := positions[roleID]; ok && pos > top {
			top = pos
		}
	}
	return top
}

// HierarchyAllows reports whether the invoker outranks the target: the guild
// owner outranks everyone, and otherwise the invoker's top role must sit
// strictly above the target's.
func HierarchyAllows(s *discordgo.Session, guildID string, invoker, target *discordgo.Member) bool {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		guild, err = s.Guild(guildID)
		if err != nil {
			return false
		}
	}

	if invoker.User != nil && invoker.User.ID == guild.OwnerID {
		return true
	}
	if target.User != nil && target.User.ID == guild.OwnerID {
		return false
	}

	return TopRolePosition(guild, invoker) > TopRolePosition(guild, target)
}
