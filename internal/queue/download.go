package queue

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/philipphutterer/metube/internal/models"
	"github.com/philipphutterer/metube/internal/storage"
	"github.com/philipphutterer/metube/internal/ytdl"
)

// Download is one queued job: the persisted request/info pair plus the
// runtime-only worker state. Runtime state is rebuilt fresh after a restart
// and defaults to "not started".
type Download struct {
	Request *models.DownloadRequest
	Info    *models.DownloadInfo

	mu          sync.Mutex
	proc        Proc
	canceled    bool
	tmpFilename string
}

func newDownload(rec storage.Record) *Download {
	return &Download{Request: rec.Request, Info: rec.Info}
}

func (d *Download) setProc(p Proc) {
	d.mu.Lock()
	d.proc = p
	d.mu.Unlock()
}

// Started reports whether a worker has ever been attached to this job.
func (d *Download) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.proc != nil
}

// Canceled reports whether an external cancel has been recorded. Once set it
// overrides any terminal status the worker reports.
func (d *Download) Canceled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.canceled
}

// Cancel records the cancel flag and, if a worker is alive, kills it. Safe to
// call at any point of the job's life.
func (d *Download) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.canceled = true
	if d.proc != nil {
		if err := d.proc.Kill(); err != nil {
			slog.Warn("Failed to kill download worker", "id", d.Info.ID, "error", err)
		}
	}
}

func (d *Download) close() {
	d.mu.Lock()
	d.proc = nil
	d.mu.Unlock()
}

// apply folds one worker event into the observable status. Events arrive in
// production order on a single channel; the caller holds the queue lock while
// applying, so snapshot readers never see a half-written record.
func (d *Download) apply(ev ytdl.ProgressEvent) {
	if ev.TmpFilename != "" {
		d.mu.Lock()
		d.tmpFilename = ev.TmpFilename
		d.mu.Unlock()
	}
	if ev.Filename != "" {
		name := ev.Filename
		if rel, err := filepath.Rel(d.Info.DownloadDir, name); err == nil && !strings.HasPrefix(rel, "..") {
			name = rel
		}
		// Thumbnails get converted after download; report the real extension.
		if d.Request.Format == "thumbnail" && strings.HasSuffix(name, ".webm") {
			name = strings.TrimSuffix(name, ".webm") + ".jpg"
		}
		d.Info.Filename = name
	}
	if ev.Status != "" {
		d.Info.Status = models.Status(ev.Status)
	}
	d.Info.Msg = ev.Msg
	if ev.DownloadedBytes != nil {
		total := ev.TotalBytes
		if total == nil {
			total = ev.TotalBytesEstimate
		}
		if total != nil && *total > 0 {
			percent := math.Round(*ev.DownloadedBytes / *total * 100)
			d.Info.Percent = &percent
		}
	}
	d.Info.Speed = ev.Speed
	if ev.ETA != nil {
		eta := int(*ev.ETA)
		d.Info.ETA = &eta
	} else {
		d.Info.ETA = nil
	}
}

// cleanupTmp removes a partial download artifact after a non-finished
// outcome. A missing file is expected; anything else gets logged.
func (d *Download) cleanupTmp() {
	d.mu.Lock()
	path := d.tmpFilename
	d.mu.Unlock()
	if path == "" {
		return
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.Info.DownloadDir, path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove temp file", "path", path, "error", err)
	}
}
