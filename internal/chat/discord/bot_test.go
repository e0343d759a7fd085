package discord

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/pjsk-cards/internal/command"
	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	channel string
	content string
	file    []byte
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
}

func (f *fakeSender) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := sent{channel: channelID, content: data.Content}
	if len(data.Files) > 0 {
		s.file, _ = io.ReadAll(data.Files[0].Reader)
	}
	f.msgs = append(f.msgs, s)
	return &discordgo.Message{ChannelID: channelID}, nil
}

type scriptedCommander struct {
	got []domain.Identity
}

func (c *scriptedCommander) Handle(_ context.Context, id domain.Identity, line string) (command.Reply, error) {
	c.got = append(c.got, id)
	if strings.HasPrefix(line, "/pjsk") {
		return command.Reply{Text: "ok: " + line, Handled: true}, nil
	}
	return command.Reply{}, nil
}

func newTestBot() (*Bot, *fakeSender, *scriptedCommander) {
	fs := &fakeSender{}
	cmds := &scriptedCommander{}
	b := &Bot{sender: fs, commands: cmds, logger: slog.New(slog.DiscardHandler)}
	return b, fs, cmds
}

func TestDispatch_AttachesImage(t *testing.T) {
	b, fs, _ := newTestBot()
	id := domain.Identity{Platform: Platform, Conversation: "123"}

	require.NoError(t, b.Dispatch(context.Background(), id, domain.Message{Text: "summary", Image: []byte("png")}))
	require.Len(t, fs.msgs, 1)
	assert.Equal(t, "123", fs.msgs[0].channel)
	assert.Equal(t, "summary", fs.msgs[0].content)
	assert.Equal(t, []byte("png"), fs.msgs[0].file)
}

func TestDispatch_IgnoresOtherPlatforms(t *testing.T) {
	b, fs, _ := newTestBot()
	err := b.Dispatch(context.Background(), domain.Identity{Platform: "web", Conversation: "x"}, domain.Message{Text: "hi"})
	require.NoError(t, err)
	assert.Empty(t, fs.msgs)
}

func TestHandle_RepliesInChannel(t *testing.T) {
	b, fs, cmds := newTestBot()

	b.handle("chan-9", "user-1", "/pjsk.列表")
	b.handle("chan-9", "user-1", "just chatting")

	require.Len(t, fs.msgs, 1)
	assert.Equal(t, "chan-9", fs.msgs[0].channel)
	assert.Equal(t, "ok: /pjsk.列表", fs.msgs[0].content)
	require.Len(t, cmds.got, 2)
	assert.Equal(t, domain.Identity{Platform: Platform, Conversation: "chan-9"}, cmds.got[0])
}

func TestOnMessageCreate_SkipsBots(t *testing.T) {
	b, fs, cmds := newTestBot()
	b.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "c", Content: "/pjsk", Author: &discordgo.User{ID: "b", Bot: true},
	}})
	assert.Empty(t, fs.msgs)
	assert.Empty(t, cmds.got)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
