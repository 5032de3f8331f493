package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snowflakeAt(ts time.Time) string {
	ms := ts.UnixMilli() - 1420070400000
	return strconv.FormatInt(ms<<22, 10)
}

func message(ts time.Time, authorID string, bot bool) *discordgo.Message {
	return &discordgo.Message{
		ID:     snowflakeAt(ts),
		Author: &discordgo.User{ID: authorID, Bot: bot},
	}
}

func TestFilterMessagesWhitelist(t *testing.T) {
	now := time.Now()
	msgs := []*discordgo.Message{
		message(now, "alice", false),
		message(now.Add(-time.Minute), "bob", false),
		message(now.Add(-2*time.Minute), "alice", false),
	}

	ids, stale := FilterMessages(msgs, &ClearMessagesOptions{Whitelist: []string{"alice"}}, now.Add(-time.Hour), -1)
	require.False(t, stale)
	assert.Equal(t, []string{msgs[0].ID, msgs[2].ID}, ids)
}

func TestFilterMessagesBlacklist(t *testing.T) {
	now := time.Now()
	msgs := []*discordgo.Message{
		message(now, "alice", false),
		message(now.Add(-time.Minute), "bob", false),
	}

	ids, stale := FilterMessages(msgs, &ClearMessagesOptions{Blacklist: []string{"alice"}}, now.Add(-time.Hour), -1)
	require.False(t, stale)
	assert.Equal(t, []string{msgs[1].ID}, ids)
}

func TestFilterMessagesBotsOnly(t *testing.T) {
	now := time.Now()
	msgs := []*discordgo.Message{
		message(now, "alice", false),
		message(now.Add(-time.Minute), "beep", true),
	}

	ids, stale := FilterMessages(msgs, &ClearMessagesOptions{BotsOnly: true}, now.Add(-time.Hour), -1)
	require.False(t, stale)
	assert.Equal(t, []string{msgs[1].ID}, ids)
}

func TestFilterMessagesStopsAtAgeCutoff(t *testing.T) {
	now := time.Now()
	cutoff := now.Add(-14 * 24 * time.Hour)
	msgs := []*discordgo.Message{
		message(now, "alice", false),
		message(cutoff.Add(-time.Hour), "alice", false),
		message(cutoff.Add(-2*time.Hour), "alice", false),
	}

	ids, stale := FilterMessages(msgs, &ClearMessagesOptions{}, cutoff, -1)
	assert.True(t, stale)
	assert.Equal(t, []string{msgs[0].ID}, ids)
}

func TestFilterMessagesHonorsRemaining(t *testing.T) {
	now := time.Now()
	msgs := []*discordgo.Message{
		message(now, "alice", false),
		message(now.Add(-time.Minute), "alice", false),
		message(now.Add(-2*time.Minute), "alice", false),
	}

	ids, _ := FilterMessages(msgs, &ClearMessagesOptions{}, now.Add(-time.Hour), 2)
	assert.Len(t, ids, 2)
}

func TestParseHexColor(t *testing.T) {
	assert.Equal(t, 0xF1C40F, ParseHexColor("0xF1C40F"))
	assert.Equal(t, 0xFFFFFF, ParseHexColor("not a color"))
}

func TestTopRolePosition(t *testing.T) {
	guild := &discordgo.Guild{Roles: []*discordgo.Role{
		{ID: "r1", Position: 1},
		{ID: "r2", Position: 5},
		{ID: "r3", Position: 3},
	}}

	member := &discordgo.Member{Roles: []string{"r1", "r3"}}
	assert.Equal(t, 3, TopRolePosition(guild, member))

	nobody := &discordgo.Member{}
	assert.Equal(t, 0, TopRolePosition(guild, nobody))
}
