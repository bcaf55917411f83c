// Package media implements the acquisition and recognition pipeline: it
// classifies an incoming trigger into one of three acquisition strategies,
// fetches the media bytes, produces a short audio sample via an external
// transcoder, and hands the sample to the recognition service. All ephemeral
// files live in the workspace and are deleted on every exit path.
package media

import (
	"log/slog"
	"mime"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// RefKind tags how a Reference should be acquired.
type RefKind int

const (
	// RawURL goes through the video extractor.
	RawURL RefKind = iota
	// AttachmentURL is fetched directly over HTTP.
	AttachmentURL
	// SocialPostID is resolved through the post-lookup endpoint first.
	SocialPostID
)

func (k RefKind) String() string {
	switch k {
	case RawURL:
		return "raw_url"
	case AttachmentURL:
		return "attachment_url"
	case SocialPostID:
		return "social_post_id"
	default:
		return "unknown"
	}
}

// Reference is a classified media reference: a URL for RawURL/AttachmentURL,
// a numeric post ID for SocialPostID. Immutable once produced by Classify.
type Reference struct {
	Kind  RefKind
	Value string
}

// Attachment is a message attachment as seen by a front end.
type Attachment struct {
	URL         string
	Filename    string
	ContentType string
}

// Trigger is the dispatcher's view of an incoming request: resolved embed
// video URLs, attachments, and free text (which may contain a link). The HTTP
// surface builds a Trigger with just the relevant field populated.
type Trigger struct {
	EmbedVideoURLs []string
	Attachments    []Attachment
	Text           string
}

// Hosts where a plain HTTP GET of an embed's video URL typically fails;
// these platforms are covered by the extractor or social strategies instead.
var directFetchDenylist = map[string]bool{
	"youtube.com":   true,
	"youtu.be":      true,
	"twitch.tv":     true,
	"tiktok.com":    true,
	"twitter.com":   true,
	"x.com":         true,
	"fxtwitter.com": true,
	"vxtwitter.com": true,
	"pxtwitter.com": true,
}

// Hosts whose status links resolve through the social post lookup.
var socialDomains = map[string]bool{
	"twitter.com":   true,
	"x.com":         true,
	"fxtwitter.com": true,
	"vxtwitter.com": true,
	"pxtwitter.com": true,
	"twxtter.com":   true,
	"twittpr.com":   true,
}

// Hosts the extractor is known to choke on; URLs on these hosts are skipped
// during the text scan rather than burned as the single strategy choice.
var extractorDenylist = map[string]bool{
	"open.spotify.com": true,
	"spotify.com":      true,
	"tenor.com":        true,
	"giphy.com":        true,
	"discord.com":      true,
	"discord.gg":       true,
}

var getURLPattern = sync.OnceValue(func() *regexp.Regexp {
	return regexp.MustCompile(`https?://[^\s<>"]+`)
})

var getStatusIDPattern = sync.OnceValue(func() *regexp.Regexp {
	return regexp.MustCompile(`/status(?:es)?/(\d+)`)
})

// Classify inspects a trigger and selects exactly one acquisition strategy.
// First match wins:
//  1. a resolved embed video URL on a directly fetchable host
//  2. a video/ or audio/ attachment
//  3. the first well-formed URL in the text (social post, or extractor
//     unless denylisted)
//
// Returns false when nothing matched; the caller then enters the pending wait.
func Classify(t Trigger) (Reference, bool) {
	for _, u := range t.EmbedVideoURLs {
		host := hostOf(u)
		if host == "" {
			continue
		}
		if directFetchDenylist[host] {
			slog.Debug("embed host not directly fetchable", slog.String("host", host))
			continue
		}
		return Reference{Kind: AttachmentURL, Value: u}, true
	}

	for _, att := range t.Attachments {
		ct := att.ContentType
		if ct == "" {
			ct = mime.TypeByExtension(filepath.Ext(att.Filename))
		}
		if strings.HasPrefix(ct, "video/") || strings.HasPrefix(ct, "audio/") {
			return Reference{Kind: AttachmentURL, Value: att.URL}, true
		}
	}

	for _, u := range getURLPattern().FindAllString(t.Text, -1) {
		host := hostOf(u)
		if host == "" {
			continue
		}
		if socialDomains[host] {
			if m := getStatusIDPattern().FindStringSubmatch(u); m != nil {
				return Reference{Kind: SocialPostID, Value: m[1]}, true
			}
			slog.Debug("social link without post id skipped", slog.String("url", u))
			continue
		}
		if extractorDenylist[host] {
			slog.Debug("extractor denylisted host skipped", slog.String("host", host))
			continue
		}
		return Reference{Kind: RawURL, Value: u}, true
	}

	return Reference{}, false
}

// hostOf returns the lowercased registrable host of a URL, with any "www."
// prefix stripped, or "" when the URL does not parse.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
