package modlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rookbot/internal/config"
	"rookbot/internal/store"
)

func TestMain(m *testing.M) {
	// the package logs through the global logger
	config.Load()
	os.Exit(m.Run())
}

type fakeSender struct {
	sent []string // channel IDs posted to
	fail bool
}

func (f *fakeSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent = append(f.sent, channelID)
	if f.fail {
		return nil, errors.New("missing permissions")
	}
	return &discordgo.Message{ID: "m1", ChannelID: channelID}, nil
}

func newTestModLog(t *testing.T) (*ModLog, *fakeSender) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	sender := &fakeSender{}
	return New(s, sender), sender
}

func TestCreateCaseNumbersAreSequential(t *testing.T) {
	m, _ := newTestModLog(t)
	m.RegisterCasetypes([]Casetype{{Name: "warning", Default: true, Title: "Warning"}})

	c1, err := m.CreateCase("g1", "warning", "u1", "mod", "first")
	require.NoError(t, err)
	c2, err := m.CreateCase("g1", "warning", "u2", "mod", "second")
	require.NoError(t, err)
	other, err := m.CreateCase("g2", "warning", "u1", "mod", "elsewhere")
	require.NoError(t, err)

	assert.Equal(t, int64(1), c1.Number)
	assert.Equal(t, int64(2), c2.Number)
	assert.Equal(t, int64(1), other.Number, "case counters are per guild")
}

func TestCreateCaseRequiresRegisteredType(t *testing.T) {
	m, _ := newTestModLog(t)

	_, err := m.CreateCase("g1", "banhammer", "u1", "mod", "nope")
	assert.Error(t, err)
}

func TestCreateCasePostsToConfiguredChannel(t *testing.T) {
	m, sender := newTestModLog(t)
	m.RegisterCasetypes([]Casetype{{Name: "warning", Default: true, Title: "Warning"}})

	// No channel configured: nothing posted.
	_, err := m.CreateCase("g1", "warning", "u1", "mod", "quiet")
	require.NoError(t, err)
	assert.Empty(t, sender.sent)

	require.NoError(t, m.SetChannel("g1", "chan-1"))
	c, err := m.CreateCase("g1", "warning", "u1", "mod", "loud")
	require.NoError(t, err)
	assert.Equal(t, []string{"chan-1"}, sender.sent)
	assert.Equal(t, "m1", c.MessageID)
}

func TestCreateCaseSurvivesFailedPost(t *testing.T) {
	m, sender := newTestModLog(t)
	sender.fail = true
	m.RegisterCasetypes([]Casetype{{Name: "warning", Default: true, Title: "Warning"}})
	require.NoError(t, m.SetChannel("g1", "chan-1"))

	c, err := m.CreateCase("g1", "warning", "u1", "mod", "loud")
	require.NoError(t, err, "a failed channel post must not fail the case")
	assert.Empty(t, c.MessageID)

	cases, err := m.CasesFor("g1", "u1")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, int64(1), cases[0].Number)
}

func TestCasesFor(t *testing.T) {
	m, _ := newTestModLog(t)
	m.RegisterCasetypes([]Casetype{
		{Name: "warning", Default: true, Title: "Warning"},
		{Name: "unwarned", Default: true, Title: "Unwarned"},
	})

	_, err := m.CreateCase("g1", "warning", "u1", "mod", "a")
	require.NoError(t, err)
	_, err = m.CreateCase("g1", "warning", "u2", "mod", "b")
	require.NoError(t, err)
	_, err = m.CreateCase("g1", "unwarned", "u1", "mod", "c")
	require.NoError(t, err)

	cases, err := m.CasesFor("g1", "u1")
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, int64(1), cases[0].Number)
	assert.Equal(t, "unwarned", cases[1].Type)
}
