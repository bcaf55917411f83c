package bot

import (
	"math/rand"

	"github.com/bwmarrin/discordgo"

	"github.com/sleuthfm/songsleuth/recognize"
)

const (
	colorBlue   = 0x3498db
	colorRed    = 0xe74c3c
	colorOrange = 0xe67e22
)

// flavorLines are picked at random to accompany a successful match.
var flavorLines = []string{
	"I found it!",
	"This might be the song you're looking for",
	"I hope this helps",
	"Hey, I love this song too",
	"I like your taste",
	"I was wondering about this song too.",
}

func flavorLine() string {
	//nolint:gosec // G404: message variety, not security
	return flavorLines[rand.Intn(len(flavorLines))]
}

// trackEmbed renders a matched track: title and artist up top, per-track
// metadata as inline fields, cover art as the thumbnail.
func trackEmbed(track *recognize.Track) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       track.Title,
		Description: track.Subtitle,
		Color:       colorBlue,
	}
	for _, prop := range track.Metadata() {
		if prop.Title == "" || prop.Text == "" {
			continue
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   prop.Title,
			Value:  prop.Text,
			Inline: true,
		})
	}
	if cover := track.CoverArtURL(); cover != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: cover}
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Shazam"}
	return embed
}

// trackComponents builds link buttons to streaming providers; nil when the
// track carries no provider links.
func trackComponents(track *recognize.Track) []discordgo.MessageComponent {
	var buttons []discordgo.MessageComponent
	if u := track.ProviderURI("SPOTIFY"); u != "" {
		buttons = append(buttons, discordgo.Button{
			Style: discordgo.LinkButton,
			Label: "Spotify",
			URL:   u,
		})
	}
	if u := track.ProviderURI("APPLEMUSIC"); u != "" {
		buttons = append(buttons, discordgo.Button{
			Style: discordgo.LinkButton,
			Label: "Apple Music",
			URL:   u,
		})
	}
	if len(buttons) == 0 {
		return nil
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func noMediaEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Media not found",
		Description: "We couldn't find any media in the message you requested",
		Color:       colorRed,
	}
}

func noMatchEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "No matches",
		Description: "Sorry, we had no song matches for that video or audio file",
		Color:       colorOrange,
	}
}

func errorEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Error",
		Description: "An error occurred while processing the media you sent",
		Color:       colorRed,
	}
}
