// Package testutil holds shared fixtures for exercising the host services
// in tests without a live discord session.
package testutil

import (
	"path/filepath"
	"sync"
	"testing"

	"rookbot/internal/bank"
	"rookbot/internal/modlog"
	"rookbot/internal/store"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

// TempStore opens a settings store backed by a temp directory.
func TempStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	return st
}

// TempBank builds a bank over a fresh temp store.
func TempBank(t *testing.T) *bank.Bank {
	t.Helper()
	return bank.New(TempStore(t))
}

// RecordingSender captures embeds a modlog would post to a channel.
type RecordingSender struct {
	mu       sync.Mutex
	Channels []string
	Embeds   []*discordgo.MessageEmbed
}

func (r *RecordingSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Channels = append(r.Channels, channelID)
	r.Embeds = append(r.Embeds, embed)
	return &discordgo.Message{ID: "0", ChannelID: channelID}, nil
}

// Sent returns how many embeds have been posted.
func (r *RecordingSender) Sent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Embeds)
}

// TempModLog builds a modlog over a fresh temp store with a recording sender.
func TempModLog(t *testing.T) (*modlog.ModLog, *RecordingSender) {
	t.Helper()
	sender := &RecordingSender{}
	return modlog.New(TempStore(t), sender), sender
}
