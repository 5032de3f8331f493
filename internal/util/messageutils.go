package util

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// Discord refuses to bulk-delete messages older than two weeks. The small
// margin keeps messages right at the boundary from slipping past while the
// request is in flight.
const bulkDeleteMaxAge = 14*24*time.Hour - time.Minute

type ClearMessagesOptions struct {
	Blacklist []string // Author ids to exclude from deletion
	Whitelist []string // When set, only these author ids are deleted
	BotsOnly  bool     // Only delete messages authored by bots
	Before    string   // Message id to fetch messages before
	Limit     int      // Maximum number of matching messages to delete
}

// FilterMessages picks the message ids that match the options and are young
// enough to bulk-delete. It reports whether the scan hit the bulk-delete age
// cutoff; messages arrive newest first, so everything past the first stale
// message is stale too.
func FilterMessages(messages []*discordgo.Message, options *ClearMessagesOptions, cutoff time.Time, remaining int) (ids []string, stale bool) {
	blacklist := make(map[string]struct{})
	for _, id := range options.Blacklist {
		blacklist[id] = struct{}{}
	}

	whitelist := make(map[string]struct{})
	for _, id := range options.Whitelist {
		whitelist[id] = struct{}{}
	}

	for _, msg := range messages {
		if remaining == 0 {
			break
		}

		created, err := discordgo.SnowflakeTimestamp(msg.ID)
		if err != nil || created.Before(cutoff) {
			return ids, true
		}

		authorID := ""
		if msg.Author != nil {
			authorID = msg.Author.ID
		}

		if _, blacklisted := blacklist[authorID]; blacklisted {
			continue
		}
		if len(whitelist) > 0 {
			if _, whitelisted := whitelist[authorID]; !whitelisted {
				continue
			}
		}
		if options.BotsOnly && (msg.Author == nil || !msg.Author.Bot) {
			continue
		}

		ids = append(ids, msg.ID)
		if remaining > 0 {
			remaining--
		}
	}

	return ids, false
}

// ClearMessagesOnChannel deletes matching messages from a channel, paging
// through history until the limit is reached, the history runs out, or the
// bulk-delete age cutoff is hit. Returns the number of messages deleted.
func ClearMessagesOnChannel(session *discordgo.Session, channelID string, options *ClearMessagesOptions) (int, error) {
	if options == nil {
		options = &ClearMessagesOptions{}
	}

	cutoff := time.Now().Add(-bulkDeleteMaxAge)
	before := options.Before
	deleted := 0

	for {
		remaining := -1
		if options.Limit > 0 {
			remaining = options.Limit - deleted
			if remaining == 0 {
				break
			}
		}

		messages, err := session.ChannelMessages(channelID, 100, before, "", "")
		if err != nil {
			return deleted, err
		}
		if len(messages) == 0 {
			break
		}
		before = messages[len(messages)-1].ID

		ids, stale := FilterMessages(messages, options, cutoff, remaining)
		if err := bulkDelete(session, channelID, ids); err != nil {
			return deleted, err
		}
		deleted += len(ids)

		if stale || len(messages) < 100 {
			break
		}
	}

	return deleted, nil
}

// Discord limits bulk deletes to 100 ids and rejects batches of one.
func bulkDelete(session *discordgo.Session, channelID string, ids []string) error {
	for i := 0; i < len(ids); i += 100 {
		end := i + 100
		if end > len(ids) {
			end = len(ids)
		}

		chunk := ids[i:end]
		if len(chunk) == 1 {
			if err := session.ChannelMessageDelete(channelID, chunk[0]); err != nil {
				return err
			}
			continue
		}
		if err := session.ChannelMessagesBulkDelete(channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}
