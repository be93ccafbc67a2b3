package youtube

import (
	"context"
	"fmt"
	"strings"

	providershared "research-assistant/llm/providers/shared"
	"research-assistant/llm/tools/shared"
)

var urlSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"url": map[string]any{
			"type":        "string",
			"description": "The YouTube video URL",
		},
	},
	"required": []string{"url"},
}

func videoID(input *shared.ToolInput) (string, *shared.ToolResult) {
	raw, ok := shared.StringArg(input.Data, "url")
	if !ok {
		return "", shared.Failure("url field is required and must be a string")
	}
	id, err := ExtractVideoID(raw)
	if err != nil {
		return "", shared.FailureFromError(err)
	}
	return id, nil
}

// DataTool is youtube_video_data.
type DataTool struct{ client *Client }

// NewDataTool creates the youtube_video_data tool
func NewDataTool(c *Client) *DataTool { return &DataTool{client: c} }

func (t *DataTool) Name() string { return "youtube_video_data" }

func (t *DataTool) Description() string {
	return "Get metadata of a YouTube video: title, channel, thumbnail."
}

func (t *DataTool) Schema() map[string]any { return urlSchema }

func (t *DataTool) Definition() *providershared.ToolDef {
	return shared.Definition(t.Name(), t.Description(), t.Schema())
}

func (t *DataTool) Execute(ctx context.Context, input *shared.ToolInput) (*shared.ToolResult, error) {
	id, fail := videoID(input)
	if fail != nil {
		return fail, nil
	}
	data, err := t.client.VideoData(ctx, id)
	if err != nil {
		return shared.Failure("failed to get video data: %v", err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n", data.Title)
	fmt.Fprintf(&sb, "Channel: %s (%s)\n", data.AuthorName, data.AuthorURL)
	fmt.Fprintf(&sb, "Thumbnail: %s\n", data.ThumbnailURL)
	fmt.Fprintf(&sb, "URL: %s\n", WatchURL(id))

	return &shared.ToolResult{
		Success: true,
		Data: map[string]any{
			"video_id":      id,
			"url":           WatchURL(id),
			"title":         data.Title,
			"author_name":   data.AuthorName,
			"author_url":    data.AuthorURL,
			"thumbnail_url": data.ThumbnailURL,
			"provider_name": data.ProviderName,
		},
		Content: sb.String(),
		Stats:   shared.ToolStats{Requests: 1},
	}, nil
}

// CaptionsTool is youtube_video_captions.
type CaptionsTool struct{ client *Client }

// NewCaptionsTool creates the youtube_video_captions tool
func NewCaptionsTool(c *Client) *CaptionsTool { return &CaptionsTool{client: c} }

func (t *CaptionsTool) Name() string { return "youtube_video_captions" }

func (t *CaptionsTool) Description() string {
	return "Get the captions (transcript text) of a YouTube video."
}

func (t *CaptionsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The YouTube video URL",
			},
			"languages": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Preferred caption languages, e.g. [\"en\", \"de\"]",
			},
		},
		"required": []string{"url"},
	}
}

func (t *CaptionsTool) Definition() *providershared.ToolDef {
	return shared.Definition(t.Name(), t.Description(), t.Schema())
}

func (t *CaptionsTool) Execute(ctx context.Context, input *shared.ToolInput) (*shared.ToolResult, error) {
	id, fail := videoID(input)
	if fail != nil {
		return fail, nil
	}
	cues, err := t.client.Captions(ctx, id, shared.StringSliceArg(input.Data, "languages"))
	if err != nil {
		return shared.Failure("failed to get captions for %s: %v", WatchURL(id), err), nil
	}

	texts := make([]string, len(cues))
	for i, c := range cues {
		texts[i] = c.Text
	}
	return &shared.ToolResult{
		Success: true,
		Data:    map[string]any{"video_id": id, "url": WatchURL(id), "cues": len(cues)},
		Content: strings.Join(texts, " "),
		Stats:   shared.ToolStats{Requests: 2},
	}, nil
}

// TimestampsTool is youtube_video_timestamps.
type TimestampsTool struct{ client *Client }

// NewTimestampsTool creates the youtube_video_timestamps tool
func NewTimestampsTool(c *Client) *TimestampsTool { return &TimestampsTool{client: c} }

func (t *TimestampsTool) Name() string { return "youtube_video_timestamps" }

func (t *TimestampsTool) Description() string {
	return "Get timestamped captions of a YouTube video, one line per caption as 'mm:ss - text'."
}

func (t *TimestampsTool) Schema() map[string]any { return urlSchema }

func (t *TimestampsTool) Definition() *providershared.ToolDef {
	return shared.Definition(t.Name(), t.Description(), t.Schema())
}

func (t *TimestampsTool) Execute(ctx context.Context, input *shared.ToolInput) (*shared.ToolResult, error) {
	id, fail := videoID(input)
	if fail != nil {
		return fail, nil
	}
	cues, err := t.client.Captions(ctx, id, nil)
	if err != nil {
		return shared.Failure("failed to get timestamps for %s: %v", WatchURL(id), err), nil
	}

	lines := make([]string, len(cues))
	for i, c := range cues {
		lines[i] = FormatTimestamp(c.Start) + " - " + c.Text
	}
	return &shared.ToolResult{
		Success: true,
		Data:    map[string]any{"video_id": id, "url": WatchURL(id), "cues": len(cues)},
		Content: strings.Join(lines, "\n"),
		Stats:   shared.ToolStats{Requests: 2},
	}, nil
}
