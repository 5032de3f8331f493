package cog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rookbot/internal/config"
	"rookbot/internal/discord"
	"rookbot/internal/music"
	"rookbot/internal/store"
	"rookbot/internal/util"

	"github.com/bwmarrin/dgvoice"
	"github.com/bwmarrin/discordgo"
	"github.com/kkdai/youtube/v2"
)

type Track struct {
	Title    string
	URL      string
	Duration string
}

type AudioConfig struct {
	Enabled        bool `json:"Enabled"`
	Max_queue_size int  `json:"Max_queue_size"`
	Embed_colors   struct {
		Playing string `json:"Playing"`
		Paused  string `json:"Paused"`
	} `json:"Embed_colors"`
}

// player is the per-guild playback state.
type player struct {
	guildID string

	mu        sync.Mutex
	queue     []Track
	current   *Track
	playing   bool
	paused    bool
	messageID string
	voice     *discordgo.VoiceConnection
	cancel    context.CancelFunc
}

// AudioCog plays youtube audio in voice channels, one player per guild.
// Tracks are enqueued by posting into the guild's configured audio channel.
type AudioCog struct {
	Session    *discordgo.Session
	Store      *store.Store
	ConfigName string

	Config  *AudioConfig
	Youtube *youtube.Client

	conf    *store.Conf
	mu      sync.Mutex
	players map[string]*player
}

func (m *AudioCog) Name() string {
	return "AudioCog"
}

func (m *AudioCog) Init() error {
	var audioConfig AudioConfig
	if err := config.LoadConfig(m.ConfigName, &audioConfig); err != nil {
		return err
	}
	m.Config = &audioConfig

	if !audioConfig.Enabled {
		config.Logger.Infoln("Audio feature disabled in configs")
		return nil
	}

	m.conf = m.Store.GetConf("Audio")
	m.conf.RegisterGuild(map[string]interface{}{
		"audio_channel": "",
	})

	m.Youtube = &youtube.Client{}
	m.players = make(map[string]*player)

	admin := int64(discordgo.PermissionAdministrator)
	registerOnReady(m.Session, m.Name(), []*discordgo.ApplicationCommand{
		{
			Name:                     "audioset",
			Description:              "Manage audio settings",
			DefaultMemberPermissions: &admin,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "channel",
					Description: "Set the text channel used to queue tracks",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Audio text channel", Required: true},
					},
				},
			},
		},
	})

	m.Session.AddHandler(m.handleMessage)
	m.Session.AddHandler(m.handleInteraction)

	config.Logger.Infoln(m.Name(), "initialized!")
	return nil
}

func (m *AudioCog) player(guildID string) *player {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[guildID]
	if !ok {
		p = &player{guildID: guildID}
		m.players[guildID] = p
	}
	return p
}

func (m *AudioCog) audioChannel(guildID string) string {
	var channelID string
	_ = m.conf.Guild(guildID).Get("audio_channel", &channelID)
	return channelID
}

func (m *AudioCog) handleMessage(s *discordgo.Session, msg *discordgo.MessageCreate) {
	if m.conf == nil || msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}
	channelID := m.audioChannel(msg.GuildID)
	if channelID == "" || msg.ChannelID != channelID {
		return
	}

	defer s.ChannelMessageDelete(channelID, msg.ID)

	voiceState := util.GetUserVoiceState(s, msg.GuildID, msg.Author.ID)
	if voiceState == nil {
		_ = discord.SendReplyMessageTimed(s, msg.ChannelID, msg.ID, "You must be in a voice channel to add songs!", 2*time.Second)
		return
	}

	p := m.player(msg.GuildID)
	if err := m.joinVoiceChannelIfNeeded(p, msg.GuildID, voiceState.ChannelID); err != nil {
		_ = discord.SendReplyMessageTimed(s, msg.ChannelID, msg.ID, fmt.Sprintf("Failed to join voice channel: %v", err), 2*time.Second)
		return
	}

	video, err := m.resolveVideo(msg.Content)
	if err != nil {
		config.Logger.Warnln(err)
		_ = discord.SendReplyMessageTimed(s, msg.ChannelID, msg.ID, "Failed to fetch video. Please ensure the URL is valid.", 2*time.Second)
		return
	}

	track := Track{
		Title:    video.Title,
		URL:      util.YoutubeIDToURL(video.ID),
		Duration: fmt.Sprintf("%02d:%02d", video.Duration/time.Minute, (video.Duration%time.Minute)/time.Second),
	}

	p.mu.Lock()
	if m.Config.Max_queue_size > 0 && len(p.queue) >= m.Config.Max_queue_size {
		p.mu.Unlock()
		_ = discord.SendReplyMessageTimed(s, msg.ChannelID, msg.ID, "The queue is full!", 2*time.Second)
		return
	}
	p.queue = append(p.queue, track)
	start := !p.playing
	if start {
		p.playing = true
	}
	p.mu.Unlock()

	if start {
		go m.runQueue(p)
	} else {
		m.updatePlayerEmbed(p)
	}
}

func (m *AudioCog) resolveVideo(query string) (*youtube.Video, error) {
	video, err := m.Youtube.GetVideo(query)
	if err == nil {
		return video, nil
	}

	url, err := music.FindYouTubeVideo(context.Background(), query)
	if err == nil {
		if video, err = m.Youtube.GetVideo(url); err == nil {
			return video, nil
		}
	}

	return nil, fmt.Errorf("couldn't find a youtube video for %q", query)
}

func (m *AudioCog) joinVoiceChannelIfNeeded(p *player, guildID, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.voice != nil && p.voice.ChannelID == channelID {
		return nil
	}
	if p.voice != nil {
		_ = p.voice.Disconnect()
		time.Sleep(100 * time.Millisecond)
	}

	vc, err := m.Session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}
	p.voice = vc
	return nil
}

func (m *AudioCog) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if m.conf == nil {
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		if data.Name != "audioset" {
			return
		}
		m.handleAudioset(s, i, data)

	case discordgo.InteractionMessageComponent:
		if i.GuildID == "" {
			return
		}
		p := m.player(i.GuildID)
		switch i.MessageComponentData().CustomID {
		case "rook_audio_play":
			m.resumePlayback(p)
		case "rook_audio_pause":
			m.pausePlayback(p)
		case "rook_audio_skip":
			m.skipTrack(p)
		case "rook_audio_disconnect":
			m.disconnect(p)
		default:
			return
		}
		_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		})
		m.updatePlayerEmbed(p)
	}
}

func (m *AudioCog) handleAudioset(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if i.GuildID == "" {
		_ = discord.RespondEphemeral(s, i.Interaction, "This command can only be used in a server.")
		return
	}

	sub, opts := subcommand(data)
	if sub != "channel" {
		return
	}

	channel := channelOption(s, opts, "channel")
	if channel == nil {
		_ = discord.RespondEphemeral(s, i.Interaction, "That channel doesn't exist.")
		return
	}
	if err := m.conf.Guild(i.GuildID).Set("audio_channel", channel.ID); err != nil {
		_ = discord.RespondEphemeral(s, i.Interaction, "Failed to save the setting.")
		return
	}
	_ = discord.RespondText(s, i.Interaction, fmt.Sprintf("Tracks are now queued by posting in <#%s>.", channel.ID))
}

func (m *AudioCog) runQueue(p *player) {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.playing = false
			p.current = nil
			p.mu.Unlock()
			m.updatePlayerEmbed(p)
			return
		}

		track := p.queue[0]
		p.queue = p.queue[1:]
		p.current = &track
		p.paused = false
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.mu.Unlock()

		m.updatePlayerEmbed(p)
		if err := m.streamTrack(ctx, p, track.URL); err != nil && ctx.Err() == nil {
			config.Logger.Errorln("Error streaming track:", err)
		}
		cancel()
	}
}

func (m *AudioCog) streamTrack(ctx context.Context, p *player, url string) error {
	p.mu.Lock()
	voice := p.voice
	p.mu.Unlock()
	if voice == nil {
		return nil
	}

	stream, err := music.GetYouTubeStream(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to get stream: %w", err)
	}
	defer stream.Close()

	pcmChan := make(chan []int16, 1024)
	go func() {
		if err := music.DecodeAudioToPCM(ctx, stream, pcmChan); err != nil && ctx.Err() == nil {
			config.Logger.Errorf("Error decoding audio: %v", err)
		}
		close(pcmChan)
	}()

	// Gate frames so pause holds the stream without tearing it down.
	gated := make(chan []int16, 1024)
	go func() {
		defer close(gated)
		for frame := range pcmChan {
			for p.isPaused() {
				select {
				case <-ctx.Done():
					return
				case <-time.After(200 * time.Millisecond):
				}
			}
			select {
			case gated <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	dgvoice.SendPCM(voice, gated)
	return nil
}

func (p *player) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (m *AudioCog) pausePlayback(p *player) {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (m *AudioCog) resumePlayback(p *player) {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

func (m *AudioCog) skipTrack(p *player) {
	p.mu.Lock()
	cancel := p.cancel
	p.paused = false
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *AudioCog) disconnect(p *player) {
	p.mu.Lock()
	cancel := p.cancel
	voice := p.voice
	p.queue = nil
	p.current = nil
	p.playing = false
	p.paused = false
	p.voice = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if voice != nil {
		_ = voice.Disconnect()
	}
}

func (m *AudioCog) updatePlayerEmbed(p *player) {
	channelID := m.audioChannel(p.guildID)
	if channelID == "" {
		return
	}

	p.mu.Lock()
	color := util.ParseHexColor(m.Config.Embed_colors.Paused)
	if p.playing && !p.paused {
		color = util.ParseHexColor(m.Config.Embed_colors.Playing)
	}

	description := "No songs currently playing."
	if p.current != nil {
		description = fmt.Sprintf("**Now Playing:** [%s](%s) (%s)\n\n**Queue:**\n", p.current.Title, p.current.URL, p.current.Duration)
		for i, track := range p.queue {
			description += fmt.Sprintf("%d. [%s](%s) (%s)\n", i+1, track.Title, track.URL, track.Duration)
			if i >= 4 {
				description += "...and more\n"
				break
			}
		}
	}
	messageID := p.messageID
	p.mu.Unlock()

	embed := &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: description,
		Color:       color,
	}

	buttons := []discordgo.MessageComponent{
		discordgo.Button{Label: "▶️", CustomID: "rook_audio_play", Style: discordgo.SuccessButton},
		discordgo.Button{Label: "⏸️", CustomID: "rook_audio_pause", Style: discordgo.SecondaryButton},
		discordgo.Button{Label: "⏭️", CustomID: "rook_audio_skip", Style: discordgo.SecondaryButton},
		discordgo.Button{Label: "Disconnect", CustomID: "rook_audio_disconnect", Style: discordgo.DangerButton},
	}

	if messageID == "" {
		msg, err := m.Session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Embed: embed,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: buttons},
			},
		})
		if err == nil {
			p.mu.Lock()
			p.messageID = msg.ID
			p.mu.Unlock()
		}
		return
	}

	_, _ = m.Session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Embed:      embed,
		ID:         messageID,
		Channel:    channelID,
		Components: &[]discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}},
	})
}
