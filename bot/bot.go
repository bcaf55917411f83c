// Package bot is the Discord front end: it watches for mentions, DMs, and
// context-menu invocations, extracts a media reference from the target
// message, runs the recognition pipeline, and replies with a track embed.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/sleuthfm/songsleuth/media"
	"github.com/sleuthfm/songsleuth/pending"
	"github.com/sleuthfm/songsleuth/recognize"
	"github.com/sleuthfm/songsleuth/telemetry"
)

const contextMenuName = "What's That Song?"

const helpText = "There are two ways to use *What's That Song?*\n\n" +
	"1. Tag me in a message containing a video, audio file, or video embed. My reply will be public.\n" +
	"2. Right click on an existing message with a video, audio file, or video embed and select **Apps > What's That Song?**. I will reply privately to you."

// recognizer runs the media pipeline; satisfied by *media.Pipeline.
type recognizer interface {
	Recognize(ctx context.Context, ref media.Reference) (*recognize.Outcome, error)
}

// Bot wires a Discord session to the recognition pipeline.
type Bot struct {
	pipeline recognizer
	waitlist *pending.Waitlist
	wait     time.Duration
	logger   *slog.Logger

	session *discordgo.Session

	// ctx is the process lifetime context handlers derive from; set by Run.
	ctx context.Context
}

// New builds a Bot over a fresh Discord session. The session is not opened
// until Run.
func New(token string, p recognizer, w *pending.Waitlist, wait time.Duration, log *slog.Logger) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	// Message content is needed to spot mentions inside edited messages
	// the gateway delivers without the usual mention array.
	session.Identify.Intents = discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent

	b := &Bot{
		pipeline: p,
		waitlist: w,
		wait:     wait,
		logger:   log.With(slog.String("component", "bot")),
		session:  session,
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onMessageUpdate)
	session.AddHandler(b.onInteraction)
	return b, nil
}

// Run opens the gateway connection and blocks until ctx is canceled, then
// closes the session.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord open connection: %w", err)
	}
	<-ctx.Done()
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("discord session ready",
		slog.String("user", r.User.Username),
		slog.String("user_id", r.User.ID))

	if err := s.UpdateListeningStatus("your music!"); err != nil {
		b.logger.Warn("set presence failed", slog.Any("err", err))
	}

	commands := []*discordgo.ApplicationCommand{
		{Name: "help", Description: "How to use What's That Song?"},
		{Name: contextMenuName, Type: discordgo.MessageApplicationCommand},
	}
	for _, cmd := range commands {
		if _, err := s.ApplicationCommandCreate(r.User.ID, "", cmd); err != nil {
			b.logger.Error("register application command failed",
				slog.String("command", cmd.Name), slog.Any("err", err))
		}
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if !eligible(m.Message, s.State.User.ID) {
		return
	}
	go b.dispatch(m.Message, &channelResponder{session: s, message: m.Message}, true)
}

// onMessageUpdate re-dispatches a message whose media embed arrived after the
// original create event. Only messages with a parked waiter are considered,
// and only the Resolve winner re-enters dispatch.
func (b *Bot) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Message == nil || !eligible(m.Message, s.State.User.ID) {
		return
	}
	if len(m.Embeds) == 0 || !b.waitlist.Waiting(m.ID) {
		return
	}
	if !b.waitlist.Resolve(m.ID) {
		return
	}
	b.logger.Debug("pending media arrived via edit", slog.String("message_id", m.ID))
	go b.dispatch(m.Message, &channelResponder{session: s, message: m.Message}, false)
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	switch data.Name {
	case "help":
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: helpText,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		if err != nil {
			b.logger.Error("help response failed", slog.Any("err", err))
		}
	case contextMenuName:
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
		})
		if err != nil {
			b.logger.Error("defer interaction failed", slog.Any("err", err))
			return
		}
		var target *discordgo.Message
		if data.Resolved != nil {
			for _, msg := range data.Resolved.Messages {
				target = msg
				break
			}
		}
		if target == nil {
			b.logger.Warn("context menu invoked without a resolved message")
			return
		}
		go b.dispatch(target, &interactionResponder{session: s, interaction: i.Interaction}, true)
	}
}

// eligible reports whether the bot should act on a message: not its own, not
// another bot's, and either a DM or a message that mentions it.
func eligible(m *discordgo.Message, botID string) bool {
	if m == nil || m.Author == nil {
		return false
	}
	if m.Author.Bot || m.Author.ID == botID {
		return false
	}
	if m.GuildID == "" {
		return true
	}
	return mentions(m, botID)
}

func mentions(m *discordgo.Message, botID string) bool {
	for _, u := range m.Mentions {
		if u.ID == botID {
			return true
		}
	}
	// Edited messages can arrive with an empty mention array.
	return strings.Contains(m.Content, "<@"+botID+">") ||
		strings.Contains(m.Content, "<@!"+botID+">")
}

// trigger assembles the dispatcher's view of a message.
func trigger(m *discordgo.Message) media.Trigger {
	var t media.Trigger
	for _, e := range m.Embeds {
		if e.Video != nil && e.Video.URL != "" {
			t.EmbedVideoURLs = append(t.EmbedVideoURLs, e.Video.URL)
		}
	}
	for _, a := range m.Attachments {
		t.Attachments = append(t.Attachments, media.Attachment{
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
		})
	}
	t.Text = m.Content
	return t
}

// dispatch classifies the message and either runs the pipeline or parks the
// message on the waitlist. allowWait is false for edit re-dispatches so an
// edit without usable media cannot re-enter the wait loop.
func (b *Bot) dispatch(m *discordgo.Message, out responder, allowWait bool) {
	ctx := b.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	log := telemetry.LoggerWithCorr(ctx)

	ref, ok := media.Classify(trigger(m))
	if !ok {
		if !allowWait {
			return
		}
		b.awaitMedia(ctx, m, out)
		return
	}

	out.typing()
	outcome, err := b.pipeline.Recognize(ctx, ref)
	if err != nil {
		b.replyFailure(log, out, err)
		return
	}
	if !outcome.Matched() {
		b.reply(log, out, "", noMatchEmbed(), nil)
		return
	}
	b.reply(log, out, flavorLine(), trackEmbed(outcome.Track), trackComponents(outcome.Track))
}

// awaitMedia parks the message until its embed arrives via an edit or the
// window elapses. The edit handler owns the re-dispatch; this side only
// reports a timeout.
func (b *Bot) awaitMedia(ctx context.Context, m *discordgo.Message, out responder) {
	log := telemetry.LoggerWithCorr(ctx)
	log.Debug("no media in message, waiting for edit", slog.String("message_id", m.ID))

	result := b.waitlist.Wait(ctx, m.ID, b.wait)
	telemetry.SetPendingWaits(b.waitlist.Len())
	switch result {
	case pending.TimedOut:
		b.reply(log, out, "", noMediaEmbed(), nil)
	case pending.Resolved, pending.Canceled:
		// Resolved: the edit handler re-dispatched. Canceled: shutting down.
	}
}

func (b *Bot) replyFailure(log *slog.Logger, out responder, err error) {
	if kind, ok := media.KindOf(err); ok && kind == media.FailureNotFound {
		b.reply(log, out, "", noMediaEmbed(), nil)
		return
	}
	b.reply(log, out, "", errorEmbed(), nil)
}

func (b *Bot) reply(log *slog.Logger, out responder, content string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) {
	if err := out.reply(content, embed, components); err != nil &&
		!errors.Is(err, context.Canceled) {
		log.Error("send reply failed", slog.Any("err", err))
	}
}
