package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
)

// YouTube resolves YouTube video links without shelling out.
type YouTube struct {
	client *youtube.Client
}

func NewYouTube(httpClient *http.Client) *YouTube {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &YouTube{client: &youtube.Client{HTTPClient: httpClient}}
}

// Match reports whether query is a single YouTube video link.
func (y *YouTube) Match(query string) bool {
	return isYouTubeVideoURL(query)
}

func (y *YouTube) Resolve(ctx context.Context, query string) (*Result, error) {
	video, err := y.client.GetVideoContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("youtube: %w", err)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, ErrNotFound
	}
	format := &formats[0]
	for i := range formats {
		if strings.HasPrefix(formats[i].MimeType, "audio/") {
			format = &formats[i]
			break
		}
	}

	link, err := y.client.GetStreamURLContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("youtube stream url: %w", err)
	}

	title := video.Title
	if title == "" {
		title = "Unknown Title"
	}
	return &Result{
		URL:      link,
		Page:     "https://www.youtube.com/watch?v=" + video.ID,
		Title:    title,
		Duration: video.Duration,
		Uploader: video.Author,
	}, nil
}

func isYouTubeVideoURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtu.be":
		return len(strings.Trim(u.Path, "/")) > 0
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if u.Path == "/watch" {
			return u.Query().Get("v") != ""
		}
		return strings.HasPrefix(u.Path, "/shorts/") && len(u.Path) > len("/shorts/")
	}
	return false
}
