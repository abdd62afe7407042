package models

import "time"

// Status is the lifecycle state of a download as reported to observers.
type Status string

const (
	StatusPreparing   Status = "preparing"
	StatusDownloading Status = "downloading"
	StatusFinished    Status = "finished"
	StatusError       Status = "error"
)

// Terminal reports whether no further worker events are expected.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError
}

// AudioFormats lists the format selectors that produce audio-only output.
var AudioFormats = map[string]bool{
	"m4a":  true,
	"mp3":  true,
	"opus": true,
	"wav":  true,
}

// DownloadRequest is the immutable intent behind a download. Only URL is ever
// rewritten, when a redirect entry is resolved.
type DownloadRequest struct {
	URL              string `json:"url"`
	Quality          string `json:"quality"`
	Format           string `json:"format"`
	Folder           string `json:"folder"`
	CustomNamePrefix string `json:"customNamePrefix"`
}

// IsAudio reports whether the request selects audio-only output.
func (r *DownloadRequest) IsAudio() bool {
	return r.Quality == "audio" || AudioFormats[r.Format]
}

// ApplyPrefix prepends the custom name prefix, if any, to s.
func (r *DownloadRequest) ApplyPrefix(s string) string {
	if r.CustomNamePrefix == "" {
		return s
	}
	return r.CustomNamePrefix + "." + s
}

// DownloadInfo is the mutable, observable half of a job. It is what gets
// serialized to clients and persisted alongside the request.
type DownloadInfo struct {
	ID                    string   `json:"id"`
	Title                 string   `json:"title"`
	URL                   string   `json:"url"`
	DownloadDir           string   `json:"download_dir"`
	OutputTemplate        string   `json:"output_template"`
	OutputTemplateChapter string   `json:"output_template_chapter"`
	Filename              string   `json:"filename,omitempty"`
	Status                Status   `json:"status,omitempty"`
	Msg                   string   `json:"msg,omitempty"`
	Percent               *float64 `json:"percent"`
	Speed                 *float64 `json:"speed"`
	ETA                   *int     `json:"eta"`
	Timestamp             int64    `json:"timestamp"`
}

// NewDownloadInfo builds the status record for a freshly resolved entry. The
// timestamp is only used to reconstruct queue order after a restart.
func NewDownloadInfo(id, title, url, downloadDir, output, outputChapter string) *DownloadInfo {
	return &DownloadInfo{
		ID:                    id,
		Title:                 title,
		URL:                   url,
		DownloadDir:           downloadDir,
		OutputTemplate:        output,
		OutputTemplateChapter: outputChapter,
		Timestamp:             time.Now().UnixNano(),
	}
}

// Result is the structured outcome returned to the transport layer by queue
// operations. Errors never propagate past this shape.
type Result struct {
	Status string `json:"status"`
	Msg    string `json:"msg,omitempty"`
}

func ResultOK() Result {
	return Result{Status: "ok"}
}

func ResultError(msg string) Result {
	return Result{Status: "error", Msg: msg}
}
