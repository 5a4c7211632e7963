package videos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/wayfarer/backend/internal/scrape"
)

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// YTDLPProvider fetches metadata using the yt-dlp CLI tool.
type YTDLPProvider struct {
	Binary  string
	Args    []string
	Run     CommandRunner
	Timeout time.Duration
}

// NewYTDLPProvider constructs a Provider that shells out to yt-dlp.
func NewYTDLPProvider(binary string, timeout time.Duration) *YTDLPProvider {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &YTDLPProvider{
		Binary:  binary,
		Args:    []string{"--dump-single-json", "--no-warnings", "--no-playlist", "--skip-download"},
		Run:     defaultCommandRunner,
		Timeout: timeout,
	}
}

type ytdlpPayload struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Thumbnail   string  `json:"thumbnail"`
	Channel     string  `json:"channel"`
	Uploader    string  `json:"uploader"`
	ChannelURL  string  `json:"channel_url"`
	Duration    float64 `json:"duration"`
	ViewCount   int64   `json:"view_count"`
	UploadDate  string  `json:"upload_date"`
}

// Lookup executes yt-dlp for the provided URL and parses the JSON response.
func (p *YTDLPProvider) Lookup(ctx context.Context, url string) (scrape.YouTubeMetadata, error) {
	if p == nil {
		return scrape.YouTubeMetadata{}, ErrProviderUnavailable
	}
	run := p.Run
	if run == nil {
		run = defaultCommandRunner
	}

	execCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	args := append([]string{}, p.Args...)
	args = append(args, url)

	out, err := run(execCtx, p.Binary, args...)
	if err != nil {
		return scrape.YouTubeMetadata{}, fmt.Errorf("yt-dlp fetch: %w", err)
	}

	var payload ytdlpPayload
	if err := json.Unmarshal(out, &payload); err != nil {
		return scrape.YouTubeMetadata{}, fmt.Errorf("parse yt-dlp response: %w", err)
	}
	if payload.Title == "" && payload.Description == "" && payload.Thumbnail == "" {
		return scrape.YouTubeMetadata{}, errors.New("yt-dlp returned empty metadata")
	}

	channel := payload.Channel
	if channel == "" {
		channel = payload.Uploader
	}
	return scrape.YouTubeMetadata{
		Title:       payload.Title,
		Description: payload.Description,
		Thumbnail:   payload.Thumbnail,
		Channel:     channel,
		ChannelURL:  payload.ChannelURL,
		Duration:    int64(payload.Duration),
		ViewCount:   payload.ViewCount,
		UploadDate:  formatUploadDate(payload.UploadDate),
	}, nil
}

// formatUploadDate turns yt-dlp's YYYYMMDD into YYYY-MM-DD.
func formatUploadDate(v string) string {
	t, err := time.Parse("20060102", v)
	if err != nil {
		return v
	}
	return t.Format(time.DateOnly)
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.Output()
}
