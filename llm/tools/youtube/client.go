package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"research-assistant/llm/providers/transport"
)

// DefaultBaseURL serves watch pages and the oEmbed endpoint.
const DefaultBaseURL = "https://www.youtube.com"

// ErrNoCaptions is returned when a video has no caption track.
var ErrNoCaptions = errors.New("no captions available")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID returns the 11 character id from the usual YouTube URL
// shapes, or the input itself when it already is an id.
func ExtractVideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if idPattern.MatchString(raw) {
		return raw, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid YouTube URL: %w", err)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/embed/"), strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/v/"), strings.HasPrefix(u.Path, "/live/"):
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) >= 2 {
				id = parts[1]
			}
		}
	default:
		return "", fmt.Errorf("not a YouTube URL: %s", raw)
	}

	if !idPattern.MatchString(id) {
		return "", fmt.Errorf("could not find a video id in %s", raw)
	}
	return id, nil
}

// WatchURL is the canonical URL of a video.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// VideoData is the oEmbed metadata of a video.
type VideoData struct {
	Title           string `json:"title"`
	AuthorName      string `json:"author_name"`
	AuthorURL       string `json:"author_url"`
	ThumbnailURL    string `json:"thumbnail_url"`
	ProviderName    string `json:"provider_name"`
	ProviderURL     string `json:"provider_url"`
	Type            string `json:"type"`
	Height          int    `json:"height"`
	Width           int    `json:"width"`
	ThumbnailHeight int    `json:"thumbnail_height"`
	ThumbnailWidth  int    `json:"thumbnail_width"`
}

// Cue is one caption line.
type Cue struct {
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
	Text     string        `json:"text"`
}

// Client talks to YouTube's public endpoints.
type Client struct {
	http    *transport.HTTPClient
	baseURL string
}

// NewClient creates a YouTube client.
func NewClient(httpClient *transport.HTTPClient, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// VideoData fetches the oEmbed metadata of a video.
func (c *Client) VideoData(ctx context.Context, id string) (*VideoData, error) {
	params := url.Values{"format": {"json"}, "url": {WatchURL(id)}}
	var data VideoData
	if err := c.http.GetJSON(ctx, c.baseURL+"/oembed?"+params.Encode(), nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
	Name         struct {
		SimpleText string `json:"simpleText"`
	} `json:"name"`
}

// Captions returns the caption cues of a video in the first available
// language of languages (default English), falling back to any track.
func (c *Client) Captions(ctx context.Context, id string, languages []string) ([]Cue, error) {
	page, err := c.http.Get(ctx, c.baseURL+"/watch?v="+id, map[string]string{"Accept-Language": "en-US,en;q=0.8"}, 4<<20)
	if err != nil {
		return nil, err
	}
	tracks, err := parseCaptionTracks(page)
	if err != nil {
		return nil, err
	}
	track := pickTrack(tracks, languages)
	if track == nil {
		return nil, ErrNoCaptions
	}

	data, err := c.http.Get(ctx, track.BaseURL, nil, 4<<20)
	if err != nil {
		return nil, fmt.Errorf("fetch captions: %w", err)
	}
	return parseTimedText(data)
}

func parseCaptionTracks(page []byte) ([]captionTrack, error) {
	const marker = `"captionTracks":`
	idx := bytes.Index(page, []byte(marker))
	if idx < 0 {
		return nil, ErrNoCaptions
	}
	var tracks []captionTrack
	dec := json.NewDecoder(bytes.NewReader(page[idx+len(marker):]))
	if err := dec.Decode(&tracks); err != nil {
		return nil, fmt.Errorf("decode caption tracks: %w", err)
	}
	return tracks, nil
}

func pickTrack(tracks []captionTrack, languages []string) *captionTrack {
	if len(tracks) == 0 {
		return nil
	}
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	for _, lang := range languages {
		// Prefer human captions over auto-generated ones.
		for _, manual := range []bool{true, false} {
			for i := range tracks {
				t := &tracks[i]
				if (t.Kind != "asr") == manual && strings.HasPrefix(t.LanguageCode, lang) {
					return t
				}
			}
		}
	}
	return &tracks[0]
}

type timedText struct {
	Texts []struct {
		Start float64 `xml:"start,attr"`
		Dur   float64 `xml:"dur,attr"`
		Body  string  `xml:",chardata"`
	} `xml:"text"`
}

func parseTimedText(data []byte) ([]Cue, error) {
	var tt timedText
	if err := xml.Unmarshal(data, &tt); err != nil {
		return nil, fmt.Errorf("parse captions: %w", err)
	}
	cues := make([]Cue, 0, len(tt.Texts))
	for _, t := range tt.Texts {
		text := strings.Join(strings.Fields(html.UnescapeString(t.Body)), " ")
		if text == "" {
			continue
		}
		cues = append(cues, Cue{
			Start:    time.Duration(t.Start * float64(time.Second)),
			Duration: time.Duration(t.Dur * float64(time.Second)),
			Text:     text,
		})
	}
	if len(cues) == 0 {
		return nil, ErrNoCaptions
	}
	return cues, nil
}

// FormatTimestamp renders d as mm:ss, or h:mm:ss past the hour.
func FormatTimestamp(d time.Duration) string {
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
