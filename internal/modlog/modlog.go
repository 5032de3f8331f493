package modlog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"rookbot/internal/config"
	"rookbot/internal/store"
)

// Casetype describes one category of moderation case.
type Casetype struct {
	Name    string `json:"name"`
	Default bool   `json:"default_setting"`
	Emoji   string `json:"image"`
	Title   string `json:"case_str"`
}

// Case is one recorded moderation action.
type Case struct {
	Number      int64     `json:"number"`
	Type        string    `json:"type"`
	UserID      string    `json:"user_id"`
	ModeratorID string    `json:"moderator_id"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
	MessageID   string    `json:"message_id,omitempty"`
}

// MessageSender is the part of a discordgo session the modlog posts through.
type MessageSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ModLog records moderation cases per guild and mirrors them to the guild's
// modlog channel when one is configured.
type ModLog struct {
	mu        sync.RWMutex
	casetypes map[string]Casetype
	conf      *store.Conf
	sender    MessageSender
}

func New(s *store.Store, sender MessageSender) *ModLog {
	conf := s.GetConf("ModLog")
	conf.RegisterGuild(map[string]interface{}{
		"modlog_channel": "",
		"case_count":     int64(0),
		"cases":          map[string]Case{},
	})
	return &ModLog{
		casetypes: make(map[string]Casetype),
		conf:      conf,
		sender:    sender,
	}
}

// RegisterCasetypes makes the given case categories available for CreateCase.
// Re-registering an existing name is a no-op, so cogs can register on every load.
func (m *ModLog) RegisterCasetypes(types []Casetype) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ct := range types {
		if _, ok := m.casetypes[ct.Name]; !ok {
			m.casetypes[ct.Name] = ct
		}
	}
}

func (m *ModLog) casetype(name string) (Casetype, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ct, ok := m.casetypes[name]
	return ct, ok
}

// SetChannel sets the channel cases are posted to. Empty disables posting.
func (m *ModLog) SetChannel(guildID, channelID string) error {
	return m.conf.Guild(guildID).Set("modlog_channel", channelID)
}

func (m *ModLog) Channel(guildID string) string {
	var ch string
	_ = m.conf.Guild(guildID).Get("modlog_channel", &ch)
	return ch
}

// CreateCase assigns the next case number for the guild, persists the case
// and posts it to the modlog channel. Posting failures are not fatal; the
// case is recorded either way.
func (m *ModLog) CreateCase(guildID, caseType, userID, moderatorID, reason string) (*Case, error) {
	ct, ok := m.casetype(caseType)
	if !ok {
		return nil, fmt.Errorf("unregistered casetype %q", caseType)
	}

	guild := m.conf.Guild(guildID)

	var number int64
	err := guild.Update("case_count", func(raw json.RawMessage) (interface{}, error) {
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &number); err != nil {
				return nil, err
			}
		}
		number++
		return number, nil
	})
	if err != nil {
		return nil, fmt.Errorf("assigning case number: %w", err)
	}

	c := Case{
		Number:      number,
		Type:        caseType,
		UserID:      userID,
		ModeratorID: moderatorID,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}

	if channelID := m.Channel(guildID); channelID != "" && ct.Default {
		msg, sendErr := m.sender.ChannelMessageSendEmbed(channelID, caseEmbed(ct, &c))
		if sendErr != nil {
			config.Logger.Warnf("Failed to post case %d to channel %s: %v", number, channelID, sendErr)
		} else {
			c.MessageID = msg.ID
		}
	}

	err = guild.Update("cases", func(raw json.RawMessage) (interface{}, error) {
		cases := map[string]Case{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &cases); err != nil {
				return nil, err
			}
		}
		cases[strconv.FormatInt(number, 10)] = c
		return cases, nil
	})
	if err != nil {
		return nil, fmt.Errorf("saving case %d: %w", number, err)
	}
	return &c, nil
}

// CasesFor returns all recorded cases against a user in a guild,
// oldest first.
func (m *ModLog) CasesFor(guildID, userID string) ([]Case, error) {
	cases := map[string]Case{}
	if err := m.conf.Guild(guildID).Get("cases", &cases); err != nil {
		return nil, err
	}
	var out []Case
	for _, c := range cases {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sortCases(out)
	return out, nil
}

func sortCases(cases []Case) {
	for i := 1; i < len(cases); i++ {
		for j := i; j > 0 && cases[j].Number < cases[j-1].Number; j-- {
			cases[j], cases[j-1] = cases[j-1], cases[j]
		}
	}
}

func caseEmbed(ct Casetype, c *Case) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Case #%d | %s %s", c.Number, ct.Title, ct.Emoji),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: fmt.Sprintf("<@%s>", c.UserID), Inline: true},
			{Name: "Moderator", Value: fmt.Sprintf("<@%s>", c.ModeratorID), Inline: true},
			{Name: "Reason", Value: c.Reason},
		},
		Timestamp: c.CreatedAt.Format(time.RFC3339),
		Color:     0xF1C40F,
	}
}
