package bot

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// responder abstracts where a dispatch result goes: a channel reply for
// message triggers, an ephemeral followup for interactions.
type responder interface {
	// typing shows activity where the surface supports it.
	typing()
	reply(content string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error
}

// channelResponder replies in the triggering channel, referencing the
// triggering message.
type channelResponder struct {
	session *discordgo.Session
	message *discordgo.Message
}

func (r *channelResponder) typing() {
	if err := r.session.ChannelTyping(r.message.ChannelID); err != nil {
		slog.Debug("typing indicator failed", slog.Any("err", err))
	}
}

func (r *channelResponder) reply(content string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	send := &discordgo.MessageSend{
		Content:    content,
		Components: components,
		Reference: &discordgo.MessageReference{
			MessageID: r.message.ID,
			ChannelID: r.message.ChannelID,
			GuildID:   r.message.GuildID,
		},
	}
	if embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{embed}
	}
	_, err := r.session.ChannelMessageSendComplex(r.message.ChannelID, send)
	return err
}

// interactionResponder sends ephemeral followups to a deferred interaction.
type interactionResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

// typing is a no-op: the deferred response already shows a thinking state.
func (r *interactionResponder) typing() {}

func (r *interactionResponder) reply(content string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	params := &discordgo.WebhookParams{
		Content:    content,
		Components: components,
		Flags:      discordgo.MessageFlagsEphemeral,
	}
	if embed != nil {
		params.Embeds = []*discordgo.MessageEmbed{embed}
	}
	_, err := r.session.FollowupMessageCreate(r.interaction, true, params)
	return err
}
