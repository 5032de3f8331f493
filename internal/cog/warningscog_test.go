package cog

import (
	"testing"

	"rookbot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWarnings(t *testing.T) *WarningsCog {
	t.Helper()
	w := &WarningsCog{Store: testutil.TempStore(t)}
	w.bindStore()
	return w
}

func seedWarning(t *testing.T, w *WarningsCog, guildID, userID, warnID, modID, description string) {
	t.Helper()
	var warns map[string]warnEntry
	require.NoError(t, w.conf.Member(guildID, userID).Get("warnings", &warns))
	if warns == nil {
		warns = map[string]warnEntry{}
	}
	warns[warnID] = warnEntry{Description: description, Mod: modID}
	require.NoError(t, w.conf.Member(guildID, userID).Set("warnings", warns))
}

func TestDeleteUserDataClearsOwnWarnings(t *testing.T) {
	w := newTestWarnings(t)
	seedWarning(t, w, "g1", "victim", "w1", "mod", "spamming")
	seedWarning(t, w, "g2", "victim", "w2", "mod", "spamming again")

	require.NoError(t, w.DeleteUserData("victim"))

	var warns map[string]warnEntry
	require.NoError(t, w.conf.Member("g1", "victim").Get("warnings", &warns))
	assert.Empty(t, warns)
	warns = nil
	require.NoError(t, w.conf.Member("g2", "victim").Get("warnings", &warns))
	assert.Empty(t, warns)
}

func TestDeleteUserDataRepointsIssuedWarnings(t *testing.T) {
	w := newTestWarnings(t)
	seedWarning(t, w, "g1", "alice", "w1", "mod", "spamming")
	seedWarning(t, w, "g1", "alice", "w2", "othermod", "flooding")

	require.NoError(t, w.DeleteUserData("mod"))

	var warns map[string]warnEntry
	require.NoError(t, w.conf.Member("g1", "alice").Get("warnings", &warns))
	require.Len(t, warns, 2)
	assert.Equal(t, deletedModerator, warns["w1"].Mod)
	assert.Equal(t, "othermod", warns["w2"].Mod)
	assert.Equal(t, "spamming", warns["w1"].Description)
}

func TestWarningsEmbedRendersDeletedModerator(t *testing.T) {
	w := newTestWarnings(t)
	seedWarning(t, w, "g1", "alice", "w1", deletedModerator, "spamming")

	embed, empty := w.warningsEmbed("g1", "alice", "Warnings for alice")
	require.False(t, empty)
	require.Len(t, embed.Fields, 1)
	assert.Contains(t, embed.Fields[0].Value, "Deleted Moderator")
}

func TestWarningsEmbedEmptyWithoutWarnings(t *testing.T) {
	w := newTestWarnings(t)

	_, empty := w.warningsEmbed("g1", "nobody", "Warnings for nobody")
	assert.True(t, empty)
}

func TestWarnDestination(t *testing.T) {
	_, announce := warnDestination(false, "chan-1")
	assert.False(t, announce, "a disabled toggle never announces")

	channelID, announce := warnDestination(true, "chan-1")
	assert.True(t, announce)
	assert.Equal(t, "chan-1", channelID)

	// Without a configured warn channel the announcement falls back to
	// the invoking channel.
	channelID, announce = warnDestination(true, "")
	assert.True(t, announce)
	assert.Empty(t, channelID)
}

func TestWarningsetOffersDataDeletion(t *testing.T) {
	w := newTestWarnings(t)

	for _, cmd := range w.commands() {
		if cmd.Name != "warningset" {
			continue
		}
		for _, opt := range cmd.Options {
			if opt.Name == "deleteuserdata" {
				require.Len(t, opt.Options, 1)
				assert.Equal(t, "user_id", opt.Options[0].Name)
				assert.True(t, opt.Options[0].Required)
				return
			}
		}
	}
	t.Fatal("warningset should offer a deleteuserdata subcommand")
}
