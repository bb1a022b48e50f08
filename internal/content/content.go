// Package content decides how a catalog link is presented: a YouTube video
// played by id, or a document shown in an embedded frame.
package content

import (
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrEmptyLink is returned for blank links.
var ErrEmptyLink = errors.New("content: empty link")

// Content is either a Document or a Video.
type Content interface {
	Kind() string
	isContent()
}

// Document is a page rendered in a frame.
type Document struct {
	URL string
}

// Video is a YouTube video identified by its 11 character id.
type Video struct {
	ID string
}

func (Document) Kind() string { return "document" }
func (Video) Kind() string { return "video" }
func (Document) isContent() {}
func (Video) isContent() {}

func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind string `json:"kind"`
		URL  string `json:"url"`
	}{d.Kind(), d.URL})
}

func (v Video) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind     string `json:"kind"`
		VideoID  string `json:"video_id"`
		EmbedURL string `json:"embed_url"`
	}{v.Kind(), v.ID, v.EmbedURL()})
}

// EmbedURL is the player URL for the video.
func (v Video) EmbedURL() string {
	return "https://www.youtube.com/embed/" + v.ID
}

var videoID = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var youtubeHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"youtube-nocookie.com":     true,
	"www.youtube-nocookie.com": true,
}

// Classify turns a catalog link into its presentation. YouTube links whose id
// cannot be extracted fall back to a Document.
func Classify(link string) (Content, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, ErrEmptyLink
	}
	if id, ok := YouTubeID(link); ok {
		return Video{ID: id}, nil
	}
	return Document{URL: link}, nil
}

// YouTubeID extracts the video id from watch, short, embed, shorts and live links.
func YouTubeID(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())

	var candidate string
	switch {
	case host == "youtu.be" || host == "www.youtu.be":
		candidate = firstSegment(u.Path)
	case youtubeHosts[host]:
		if u.Path == "/watch" {
			candidate = u.Query().Get("v")
			break
		}
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segments) == 2 {
			switch segments[0] {
			case "embed", "shorts", "live", "v":
				candidate = segments[1]
			}
		}
	default:
		return "", false
	}

	if !videoID.MatchString(candidate) {
		return "", false
	}
	return candidate, true
}

func firstSegment(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.Index(path, "/"); i >= 0 {
		path = path[:i]
	}
	return path
}
