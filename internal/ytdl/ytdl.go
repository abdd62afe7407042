package ytdl

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"
)

// EngineError is a failure reported by the yt-dlp engine itself, carrying the
// message that should be surfaced to the caller.
type EngineError struct {
	Msg string
}

func (e *EngineError) Error() string {
	return e.Msg
}

// Entry is one node of the metadata tree produced by flat extraction. A
// playlist carries child entries; a bare link without id/title is a redirect
// that needs another resolution round.
type Entry struct {
	Type       string   `json:"_type"`
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	WebpageURL string   `json:"webpage_url"`
	Uploader   string   `json:"uploader"`
	UploaderID string   `json:"uploader_id"`
	Entries    []*Entry `json:"entries"`

	// PlaylistProps holds the playlist_* attributes stamped onto children of
	// a playlist entry. Not part of the yt-dlp payload.
	PlaylistProps map[string]string `json:"-"`
}

// Kind normalizes the entry type; yt-dlp omits _type for plain videos and
// uses url/url_transparent for unresolved links.
func (e *Entry) Kind() string {
	if e.Type == "" {
		return "video"
	}
	return e.Type
}

// SourceURL prefers the canonical webpage URL over the raw one.
func (e *Entry) SourceURL() string {
	if e.WebpageURL != "" {
		return e.WebpageURL
	}
	return e.URL
}

// Client shells out to the yt-dlp executable. The zero value uses "yt-dlp"
// from PATH.
type Client struct {
	Path          string
	SocketTimeout int // seconds, passed straight to yt-dlp
}

func (c *Client) executable() string {
	if c.Path != "" {
		return c.Path
	}
	return "yt-dlp"
}

func (c *Client) socketTimeout() string {
	t := c.SocketTimeout
	if t <= 0 {
		t = 30
	}
	return strconv.Itoa(t)
}

// Extract performs a metadata-only flat resolution of url. No media is
// transferred. Engine failures come back as *EngineError with the engine's
// own message.
func (c *Client) Extract(ctx context.Context, url string) (*Entry, error) {
	cmd := exec.CommandContext(ctx, c.executable(),
		"--quiet", "--no-color",
		"--dump-single-json", "--flat-playlist",
		"--socket-timeout", c.socketTimeout(),
		url,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, &EngineError{Msg: msg}
	}

	var entry Entry
	if err := json.Unmarshal(stdout.Bytes(), &entry); err != nil {
		return nil, &EngineError{Msg: "unreadable metadata from yt-dlp: " + err.Error()}
	}
	return &entry, nil
}
