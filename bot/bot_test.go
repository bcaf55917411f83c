package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sleuthfm/songsleuth/media"
	"github.com/sleuthfm/songsleuth/pending"
	"github.com/sleuthfm/songsleuth/recognize"
)

type fakePipeline struct {
	outcome *recognize.Outcome
	err     error

	mu   sync.Mutex
	refs []media.Reference
}

func (f *fakePipeline) Recognize(_ context.Context, ref media.Reference) (*recognize.Outcome, error) {
	f.mu.Lock()
	f.refs = append(f.refs, ref)
	f.mu.Unlock()
	return f.outcome, f.err
}

type fakeResponder struct {
	mu      sync.Mutex
	typed   bool
	replies []fakeReply
	done    chan struct{}
}

type fakeReply struct {
	content    string
	embed      *discordgo.MessageEmbed
	components []discordgo.MessageComponent
}

func newFakeResponder() *fakeResponder {
	return &fakeResponder{done: make(chan struct{}, 8)}
}

func (r *fakeResponder) typing() {
	r.mu.Lock()
	r.typed = true
	r.mu.Unlock()
}

func (r *fakeResponder) reply(content string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	r.mu.Lock()
	r.replies = append(r.replies, fakeReply{content: content, embed: embed, components: components})
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *fakeResponder) lastReply(t *testing.T) fakeReply {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no reply arrived")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replies[len(r.replies)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBot(p recognizer, wait time.Duration) *Bot {
	return &Bot{
		pipeline: p,
		waitlist: pending.NewWaitlist(),
		wait:     wait,
		logger:   discardLogger(),
	}
}

func videoMessage(url string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "msg-1",
		ChannelID: "chan-1",
		Content:   "what is this?",
		Embeds: []*discordgo.MessageEmbed{
			{Video: &discordgo.MessageEmbedVideo{URL: url}},
		},
	}
}

func TestEligible(t *testing.T) {
	const botID = "bot-1"
	cases := []struct {
		name string
		msg  *discordgo.Message
		want bool
	}{
		{
			name: "guild message with mention",
			msg: &discordgo.Message{
				GuildID:  "g",
				Author:   &discordgo.User{ID: "u"},
				Mentions: []*discordgo.User{{ID: botID}},
			},
			want: true,
		},
		{
			name: "guild message with raw mention in content",
			msg: &discordgo.Message{
				GuildID: "g",
				Author:  &discordgo.User{ID: "u"},
				Content: "hey <@bot-1> what song",
			},
			want: true,
		},
		{
			name: "guild message without mention",
			msg: &discordgo.Message{
				GuildID: "g",
				Author:  &discordgo.User{ID: "u"},
				Content: "just chatting",
			},
			want: false,
		},
		{
			name: "direct message without mention",
			msg:  &discordgo.Message{Author: &discordgo.User{ID: "u"}, Content: "hi"},
			want: true,
		},
		{
			name: "own message",
			msg:  &discordgo.Message{Author: &discordgo.User{ID: botID}},
			want: false,
		},
		{
			name: "other bot",
			msg:  &discordgo.Message{Author: &discordgo.User{ID: "u", Bot: true}},
			want: false,
		},
		{
			name: "nil author",
			msg:  &discordgo.Message{},
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := eligible(tc.msg, botID); got != tc.want {
				t.Errorf("eligible = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTrigger(t *testing.T) {
	msg := &discordgo.Message{
		Content: "listen to https://vimeo.com/1",
		Embeds: []*discordgo.MessageEmbed{
			{Video: &discordgo.MessageEmbedVideo{URL: "https://cdn.example.com/v.mp4"}},
			{},
		},
		Attachments: []*discordgo.MessageAttachment{
			{URL: "https://cdn.example.com/a.mp3", Filename: "a.mp3", ContentType: "audio/mpeg"},
		},
	}
	got := trigger(msg)
	if len(got.EmbedVideoURLs) != 1 || got.EmbedVideoURLs[0] != "https://cdn.example.com/v.mp4" {
		t.Errorf("embed urls = %v", got.EmbedVideoURLs)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].ContentType != "audio/mpeg" {
		t.Errorf("attachments = %+v", got.Attachments)
	}
	if got.Text != msg.Content {
		t.Errorf("text = %q", got.Text)
	}
}

func TestDispatchMatchedTrack(t *testing.T) {
	track := &recognize.Track{
		Title:    "Song",
		Subtitle: "Artist",
		Sections: []recognize.Section{{Metadata: []recognize.MetadataPair{{Title: "Album", Text: "LP"}}}},
		Images:   &recognize.Images{CoverArtHQ: "https://img.example.com/hq.jpg"},
	}
	p := &fakePipeline{outcome: &recognize.Outcome{Track: track}}
	b := newTestBot(p, time.Second)
	out := newFakeResponder()

	b.dispatch(videoMessage("https://cdn.example.com/clip.mp4"), out, true)

	reply := out.lastReply(t)
	if reply.content == "" {
		t.Error("matched reply has no flavor line")
	}
	if reply.embed == nil || reply.embed.Title != "Song" || reply.embed.Description != "Artist" {
		t.Fatalf("embed = %+v", reply.embed)
	}
	if len(reply.embed.Fields) != 1 || reply.embed.Fields[0].Name != "Album" {
		t.Errorf("embed fields = %+v", reply.embed.Fields)
	}
	if reply.embed.Thumbnail == nil || reply.embed.Thumbnail.URL != "https://img.example.com/hq.jpg" {
		t.Errorf("thumbnail = %+v", reply.embed.Thumbnail)
	}
	if !out.typed {
		t.Error("typing indicator not shown")
	}
	if len(p.refs) != 1 || p.refs[0].Kind != media.AttachmentURL {
		t.Errorf("pipeline refs = %+v", p.refs)
	}
}

func TestDispatchNoMatch(t *testing.T) {
	p := &fakePipeline{outcome: &recognize.Outcome{}}
	b := newTestBot(p, time.Second)
	out := newFakeResponder()

	b.dispatch(videoMessage("https://cdn.example.com/clip.mp4"), out, true)

	reply := out.lastReply(t)
	if reply.embed == nil || reply.embed.Title != "No matches" {
		t.Errorf("embed = %+v", reply.embed)
	}
	if reply.content != "" {
		t.Errorf("no-match reply carries content %q", reply.content)
	}
}

func TestDispatchFailureEmbeds(t *testing.T) {
	notFound := media.NewError(media.FailureNotFound, "no media")
	upstream := media.NewError(media.FailureUpstream, "cdn said no")

	cases := []struct {
		name      string
		err       error
		wantTitle string
	}{
		{"not found is neutral", notFound, "Media not found"},
		{"upstream is generic error", upstream, "Error"},
		{"unclassified is generic error", errors.New("boom"), "Error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBot(&fakePipeline{err: tc.err}, time.Second)
			out := newFakeResponder()
			b.dispatch(videoMessage("https://cdn.example.com/clip.mp4"), out, true)
			reply := out.lastReply(t)
			if reply.embed == nil || reply.embed.Title != tc.wantTitle {
				t.Errorf("embed = %+v, want title %q", reply.embed, tc.wantTitle)
			}
		})
	}
}

func TestDispatchNoMediaTimesOut(t *testing.T) {
	p := &fakePipeline{}
	b := newTestBot(p, 20*time.Millisecond)
	out := newFakeResponder()

	msg := &discordgo.Message{ID: "msg-2", ChannelID: "c", Content: "what song?"}
	b.dispatch(msg, out, true)

	reply := out.lastReply(t)
	if reply.embed == nil || reply.embed.Title != "Media not found" {
		t.Errorf("embed = %+v", reply.embed)
	}
	if len(p.refs) != 0 {
		t.Errorf("pipeline ran %d times for a message without media", len(p.refs))
	}
}

func TestDispatchNoMediaResolvedStaysSilent(t *testing.T) {
	b := newTestBot(&fakePipeline{}, 500*time.Millisecond)
	out := newFakeResponder()

	msg := &discordgo.Message{ID: "msg-3", ChannelID: "c", Content: "what song?"}
	go b.dispatch(msg, out, true)

	// Let the waiter register, then resolve as the edit handler would.
	deadline := time.Now().Add(time.Second)
	for !b.waitlist.Waiting("msg-3") {
		if time.Now().After(deadline) {
			t.Fatal("waiter never registered")
		}
		time.Sleep(time.Millisecond)
	}
	if !b.waitlist.Resolve("msg-3") {
		t.Fatal("Resolve returned false for a registered waiter")
	}

	select {
	case <-out.done:
		t.Fatal("resolved wait still produced a reply")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatchEditWithoutMediaDoesNotRewait(t *testing.T) {
	b := newTestBot(&fakePipeline{}, 10*time.Millisecond)
	out := newFakeResponder()

	msg := &discordgo.Message{ID: "msg-4", ChannelID: "c", Content: "still nothing"}
	b.dispatch(msg, out, false)

	select {
	case <-out.done:
		t.Fatal("edit re-dispatch without media produced a reply")
	case <-time.After(50 * time.Millisecond):
	}
	if b.waitlist.Len() != 0 {
		t.Errorf("waitlist len = %d after edit re-dispatch, want 0", b.waitlist.Len())
	}
}

func TestTrackComponents(t *testing.T) {
	track := &recognize.Track{}
	if got := trackComponents(track); got != nil {
		t.Errorf("components for linkless track = %+v, want nil", got)
	}
}
