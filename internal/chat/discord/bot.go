// Package discord connects the card engine to Discord channels: messages
// become commands and card results are posted back with the PNG attached.
package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/pjsk-cards/internal/command"
	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/ashureev/pjsk-cards/internal/identity"
	"github.com/bwmarrin/discordgo"
)

// Platform is the identity platform used for Discord conversations.
const Platform = "discord"

// handleTimeout bounds one command, render included.
const handleTimeout = 30 * time.Second

// Commander runs one chat line for an identity.
type Commander interface {
	Handle(ctx context.Context, id domain.Identity, line string) (command.Reply, error)
}

// sender is the part of *discordgo.Session the bot posts through.
type sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Bot is a Discord gateway client and a domain.Dispatcher for the
// "discord" platform. Each channel is one conversation.
type Bot struct {
	session  *discordgo.Session
	sender   sender
	commands Commander
	logger   *slog.Logger
}

// New creates a bot for token. Call SetCommander before Open.
func New(token string, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b := &Bot{session: s, sender: s, logger: logger}
	s.AddHandler(b.onMessageCreate)
	return b, nil
}

// SetCommander wires the command handler. The publisher that dispatches
// through the bot is built before the handler, hence the late binding.
func (b *Bot) SetCommander(c Commander) {
	b.commands = c
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	b.logger.Info("Discord bot connected")
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.session.Close()
}

// Dispatch posts msg to the channel behind id. Identities of other
// platforms are ignored.
func (b *Bot) Dispatch(_ context.Context, id domain.Identity, msg domain.Message) error {
	if id.Platform != Platform {
		return nil
	}
	send := &discordgo.MessageSend{Content: truncate(msg.Text, 2000)}
	if len(msg.Image) > 0 {
		send.Files = []*discordgo.File{{
			Name:        "card.png",
			ContentType: "image/png",
			Reader:      bytes.NewReader(msg.Image),
		}}
	}
	if _, err := b.sender.ChannelMessageSendComplex(id.Conversation, send); err != nil {
		return fmt.Errorf("send to channel %s: %w", id.Conversation, err)
	}
	return nil
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	b.handle(m.ChannelID, m.Author.ID, m.Content)
}

func (b *Bot) handle(channelID, authorID, content string) {
	if b.commands == nil || strings.TrimSpace(content) == "" {
		return
	}
	id, err := identity.FromSender(Platform, channelID, authorID)
	if err != nil {
		b.logger.Warn("Discord message without usable identity", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	reply, err := b.commands.Handle(ctx, id, content)
	if err != nil {
		b.logger.Debug("Discord command failed", "channel_id", channelID, "error", err)
	}
	if reply.Text == "" {
		return
	}
	if err := b.Dispatch(ctx, id, domain.Message{Text: reply.Text}); err != nil {
		b.logger.Warn("Failed to send Discord reply", "channel_id", channelID, "error", err)
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
