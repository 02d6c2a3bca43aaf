package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

type ytdlpFormat struct {
	URL    string `json:"url"`
	ACodec string `json:"acodec"`
	VCodec string `json:"vcodec"`
}

type ytdlpInfo struct {
	Type       string        `json:"_type"`
	URL        string        `json:"url"`
	Title      string        `json:"title"`
	WebpageURL string        `json:"webpage_url"`
	Duration   float64       `json:"duration"`
	Uploader   string        `json:"uploader"`
	Formats    []ytdlpFormat `json:"formats"`
	Entries    []*ytdlpInfo  `json:"entries"`
}

// YTDLP resolves anything yt-dlp understands; plain text is searched on
// YouTube.
type YTDLP struct {
	Path string
}

func (y *YTDLP) path() string {
	if y.Path == "" {
		return "yt-dlp"
	}
	return y.Path
}

func (y *YTDLP) Resolve(ctx context.Context, query string) (*Result, error) {
	cmd := exec.CommandContext(ctx, y.path(),
		"-J",
		"--no-playlist",
		"--no-warnings",
		"--no-check-certificates",
		"--default-search", "ytsearch",
		"-f", "bestaudio/best",
		query,
	)
	output, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("yt-dlp json: %w", err)
	}
	return pickStream(&info)
}

// pickStream selects the first entry of a search or playlist result and
// finds a direct stream locator in it.
func pickStream(info *ytdlpInfo) (*Result, error) {
	if len(info.Entries) > 0 || info.Type == "playlist" {
		var first *ytdlpInfo
		for _, e := range info.Entries {
			if e != nil {
				first = e
				break
			}
		}
		if first == nil {
			return nil, ErrNotFound
		}
		info = first
	}

	url := info.URL
	if url == "" {
		for _, f := range info.Formats {
			if f.ACodec != "none" && f.VCodec == "none" && f.URL != "" {
				url = f.URL
				break
			}
		}
	}
	if url == "" && len(info.Formats) > 0 {
		url = info.Formats[0].URL
	}
	if url == "" {
		return nil, ErrNotFound
	}

	title := info.Title
	if title == "" {
		title = "Unknown Title"
	}
	return &Result{
		URL:      url,
		Page:     info.WebpageURL,
		Title:    title,
		Duration: time.Duration(info.Duration * float64(time.Second)),
		Uploader: info.Uploader,
	}, nil
}
