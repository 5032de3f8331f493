package util

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// MessageData is a canned response defined in a cog config file.
type MessageData struct {
	Content string    `json:"content,omitempty"`
	Embed   EmbedData `json:"embed,omitempty"`
}

type EmbedData struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Color       string `json:"color,omitempty"`
	Footer      Footer `json:"footer,omitempty"`
	Image       string `json:"image,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

type Footer struct {
	Text    string `json:"text,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

func CreateMessageSend(message MessageData) (*discordgo.MessageSend, error) {
	embed, err := CreateEmbed(message.Embed)
	if err != nil {
		return nil, err
	}

	return &discordgo.MessageSend{
		Content: message.Content,
		Embed:   embed,
	}, nil
}

func CreateEmbed(message EmbedData) (*discordgo.MessageEmbed, error) {
	embed := &discordgo.MessageEmbed{}

	if message.Title != "" {
		embed.Title = message.Title
	}
	if message.Description != "" {
		embed.Description = message.Description
	}
	if message.URL != "" {
		embed.URL = message.URL
	}
	if message.Color != "" {
		embed.Color = ParseHexColor(message.Color)
	}
	if message.Footer.Text != "" || message.Footer.IconURL != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text:    message.Footer.Text,
			IconURL: message.Footer.IconURL,
		}
	}
	if message.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: message.Thumbnail}
	}
	if message.Image != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: message.Image}
	}

	return embed, nil
}

// ParseHexColor reads a 0x-prefixed hex color, defaulting to white.
func ParseHexColor(color string) int {
	var parsedColor int
	if _, err := fmt.Sscanf(color, "0x%x", &parsedColor); err != nil {
		return 0xFFFFFF
	}
	return parsedColor
}
