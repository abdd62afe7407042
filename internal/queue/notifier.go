package queue

import (
	"context"

	"github.com/philipphutterer/metube/internal/models"
	"github.com/philipphutterer/metube/internal/ytdl"
)

// Notifier is the transport-agnostic sink for job lifecycle events. The
// websocket hub implements it in production; tests plug in a recorder.
type Notifier interface {
	Added(info *models.DownloadInfo)
	Updated(info *models.DownloadInfo)
	Completed(info *models.DownloadInfo)
	Canceled(id string)
	Cleared(id string)
}

// Engine is the media-resolution capability the queue orchestrates. Extract
// must be metadata-only; Download spawns an isolated worker for one job.
type Engine interface {
	Extract(ctx context.Context, url string) (*ytdl.Entry, error)
	Download(req *models.DownloadRequest, info *models.DownloadInfo) (Proc, error)
}

// Proc is a live worker handle. Events yields progress in production order
// and is closed after exactly one terminal event.
type Proc interface {
	Events() <-chan ytdl.ProgressEvent
	Kill() error
}
