package util

import (
	"github.com/bwmarrin/discordgo"
)

// GetUserVoiceState finds the voice state of a user in a guild, or nil when
// the user is not in a voice channel.
func GetUserVoiceState(s *discordgo.Session, guildID, userID string) *discordgo.VoiceState {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return nil
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs
		}
	}
	return nil
}
