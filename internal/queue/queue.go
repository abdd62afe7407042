package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/philipphutterer/metube/internal/config"
	"github.com/philipphutterer/metube/internal/models"
	"github.com/philipphutterer/metube/internal/storage"
	"github.com/philipphutterer/metube/internal/ytdl"
)

// DownloadQueue coordinates the whole lifecycle: it resolves incoming
// requests into jobs, drains the pending store one job at a time through the
// engine, and moves terminal jobs into the archive store. All store mutation
// funnels through here; workers only ever talk back over their event channel.
type DownloadQueue struct {
	cfg      config.Config
	notifier Notifier
	engine   Engine

	// mu guards the stores, the jobs map, and every mutation of a live
	// job's DownloadInfo. Observers only ever see copies taken under it.
	mu    sync.Mutex
	queue *storage.PersistentQueue
	done  *storage.PersistentQueue
	jobs  map[string]*Download
	wake  chan struct{}
}

func New(cfg config.Config, notifier Notifier, engine Engine) *DownloadQueue {
	dq := &DownloadQueue{
		cfg:      cfg,
		notifier: notifier,
		engine:   engine,
		queue:    storage.New(cfg.StatePath("queue.json")),
		done:     storage.New(cfg.StatePath("completed.json")),
		jobs:     make(map[string]*Download),
		wake:     make(chan struct{}, 1),
	}
	// Jobs that survived a restart get fresh runtime state.
	for _, kv := range dq.queue.Items() {
		dq.jobs[kv.Key] = newDownload(kv.Record)
	}
	return dq
}

// Start launches the drain loop and wakes it if reloaded state is waiting.
func (q *DownloadQueue) Start() {
	go q.drain()
	if !q.queue.Empty() {
		q.signal()
	}
}

func (q *DownloadQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Add resolves the request's URL, which may fan out into any number of jobs
// through playlists and redirects, and enqueues each resolved item. Errors
// come back as a structured result, never as a panic or transport failure.
func (q *DownloadQueue) Add(ctx context.Context, req *models.DownloadRequest) models.Result {
	slog.Info("Adding download", "url", req.URL, "quality", req.Quality, "format", req.Format)
	visited := make(map[string]struct{})
	if err := q.resolve(ctx, req, visited); err != nil {
		return models.ResultError(err.Error())
	}
	return models.ResultOK()
}

// resolve works through a stack of requests, one extraction each. The shared
// visited set absorbs redirect cycles: a URL seen twice is silently skipped.
func (q *DownloadQueue) resolve(ctx context.Context, req *models.DownloadRequest, visited map[string]struct{}) error {
	work := []*models.DownloadRequest{req}
	for len(work) > 0 {
		r := work[0]
		work = work[1:]

		if _, seen := visited[r.URL]; seen {
			slog.Info("Recursion detected, skipping", "url", r.URL)
			continue
		}
		visited[r.URL] = struct{}{}

		entry, err := q.engine.Extract(ctx, r.URL)
		if err != nil {
			return err
		}

		switch kind := entry.Kind(); {
		case kind == "playlist":
			if err := q.addPlaylist(ctx, entry, r, &work); err != nil {
				return err
			}
		case kind == "video" || strings.HasPrefix(kind, "url") && entry.ID != "" && entry.Title != "":
			if err := q.addVideo(ctx, entry, r); err != nil {
				return err
			}
		case strings.HasPrefix(kind, "url"):
			// Redirect: the entry is just another URL to resolve.
			redirect := *r
			redirect.URL = entry.URL
			work = append(work, &redirect)
		default:
			return fmt.Errorf("unsupported resource %q", kind)
		}
	}
	return nil
}

// addPlaylist stamps every child with its playlist attributes and enqueues
// them in order. A failing child does not roll back its predecessors; all
// child errors are aggregated into one result.
func (q *DownloadQueue) addPlaylist(ctx context.Context, entry *ytdl.Entry, req *models.DownloadRequest, work *[]*models.DownloadRequest) error {
	slog.Info("Playlist detected", "id", entry.ID, "entries", len(entry.Entries))
	width := len(strconv.Itoa(len(entry.Entries)))

	var msgs []string
	for i, child := range entry.Entries {
		child.PlaylistProps = map[string]string{
			"playlist":       entry.ID,
			"playlist_index": fmt.Sprintf("%0*d", width, i+1),
		}
		for prop, value := range map[string]string{
			"playlist_id":          entry.ID,
			"playlist_title":       entry.Title,
			"playlist_uploader":    entry.Uploader,
			"playlist_uploader_id": entry.UploaderID,
		} {
			if value != "" {
				child.PlaylistProps[prop] = value
			}
		}

		switch kind := child.Kind(); {
		case kind == "video" || strings.HasPrefix(kind, "url") && child.ID != "" && child.Title != "":
			if err := q.addVideo(ctx, child, req); err != nil {
				msgs = append(msgs, err.Error())
			}
		case strings.HasPrefix(kind, "url"):
			redirect := *req
			redirect.URL = child.URL
			*work = append(*work, &redirect)
		default:
			msgs = append(msgs, fmt.Sprintf("unsupported resource %q", kind))
		}
	}
	if len(msgs) > 0 {
		return errors.New(strings.Join(msgs, "\n\n"))
	}
	return nil
}

// addVideo materializes one resolved entry into a pending job.
func (q *DownloadQueue) addVideo(ctx context.Context, entry *ytdl.Entry, req *models.DownloadRequest) error {
	baseDir := q.cfg.DownloadDir
	if req.IsAudio() {
		baseDir = q.cfg.AudioDownloadDir
	}
	downloadDir := baseDir
	if req.Folder != "" {
		var err error
		downloadDir, err = q.customFolder(baseDir, req.Folder)
		if err != nil {
			return err
		}
	}

	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	title := entry.Title
	if title == "" {
		scraped, err := ytdl.PageTitle(ctx, entry.SourceURL())
		if err != nil {
			slog.Debug("No page title", "url", entry.SourceURL(), "error", err)
			scraped = entry.SourceURL()
		}
		title = scraped
	}
	id = req.ApplyPrefix(id)
	title = req.ApplyPrefix(title)

	output := req.ApplyPrefix(q.cfg.OutputTemplate)
	for prop, value := range entry.PlaylistProps {
		output = strings.ReplaceAll(output, "%("+prop+")s", value)
	}

	info := models.NewDownloadInfo(id, title, entry.SourceURL(), downloadDir, output, q.cfg.OutputTemplateChapter)
	rec := storage.Record{Request: req, Info: info}

	// The dedup check must share the critical section with the insert, or two
	// concurrent adds of the same id both pass it.
	q.mu.Lock()
	if q.queue.Exists(id) {
		q.mu.Unlock()
		slog.Info("Already in queue, skipping", "id", id)
		return nil
	}
	if err := q.queue.Put(rec); err != nil {
		q.queue.Delete(id)
		q.mu.Unlock()
		return fmt.Errorf("could not persist the queue: %w", err)
	}
	q.jobs[id] = newDownload(rec)
	copied := *info
	q.mu.Unlock()

	q.notifier.Added(&copied)
	q.signal()
	return nil
}

// customFolder joins folder under baseDir and refuses any result that would
// escape it. Directory creation is gated on configuration.
func (q *DownloadQueue) customFolder(baseDir, folder string) (string, error) {
	if !q.cfg.CustomDirs {
		return "", errors.New("a folder for the download was specified but CUSTOM_DIRS is not true in the configuration")
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}
	absDir, err := filepath.Abs(filepath.Join(baseDir, folder))
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("folder %q must resolve inside the base download directory %q", folder, absBase)
	}
	if fi, err := os.Stat(absDir); err != nil || !fi.IsDir() {
		if !q.cfg.CreateCustomDirs {
			return "", fmt.Errorf("folder %q for download does not exist inside base directory %q, and CREATE_CUSTOM_DIRS is not true in the configuration", folder, absBase)
		}
		if err := os.MkdirAll(absDir, os.ModePerm); err != nil {
			return "", err
		}
	}
	return absDir, nil
}

// Cancel stops the given pending jobs. A running job gets its worker killed;
// a job that never started is removed outright. Unknown ids are logged and
// skipped.
func (q *DownloadQueue) Cancel(ids []string) models.Result {
	for _, id := range ids {
		q.mu.Lock()
		job, ok := q.jobs[id]
		if !ok || !q.queue.Exists(id) {
			q.mu.Unlock()
			slog.Warn("Requested cancel for non-existent download", "id", id)
			continue
		}
		if job.Started() {
			job.Cancel()
			q.mu.Unlock()
			continue
		}
		job.Cancel()
		if err := q.queue.Delete(id); err != nil {
			slog.Error("Failed to persist queue", "id", id, "error", err)
		}
		delete(q.jobs, id)
		q.mu.Unlock()
		q.notifier.Canceled(id)
	}
	return models.ResultOK()
}

// Clear drops archived jobs and, when configured, their on-disk artifacts.
// Unknown ids are a no-op.
func (q *DownloadQueue) Clear(ids []string) models.Result {
	for _, id := range ids {
		rec, ok := q.done.Get(id)
		if !ok {
			slog.Warn("Requested clear for non-existent download", "id", id)
			continue
		}
		if q.cfg.DeleteFileOnTrashcan && rec.Info.Filename != "" {
			path := filepath.Join(rec.Info.DownloadDir, rec.Info.Filename)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				slog.Warn("Failed to delete downloaded file", "path", path, "error", err)
			}
		}
		if err := q.done.Delete(id); err != nil {
			slog.Error("Failed to persist archive", "id", id, "error", err)
		}
		q.notifier.Cleared(id)
	}
	return models.ResultOK()
}

// SnapshotEntry is one (key, status) pair of a queue snapshot.
type SnapshotEntry struct {
	Key  string               `json:"key"`
	Info *models.DownloadInfo `json:"info"`
}

// Snapshot is the full observable state, used to synchronize new observers.
type Snapshot struct {
	Queue []SnapshotEntry `json:"queue"`
	Done  []SnapshotEntry `json:"done"`
}

// Get returns the pending and archived jobs in current store order. Every
// entry carries a copy of the job's record, so callers may read or marshal it
// while the drain loop keeps mutating the live one.
func (q *DownloadQueue) Get() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	snap := Snapshot{Queue: []SnapshotEntry{}, Done: []SnapshotEntry{}}
	for _, kv := range q.queue.Items() {
		info := *kv.Record.Info
		snap.Queue = append(snap.Queue, SnapshotEntry{Key: kv.Key, Info: &info})
	}
	for _, kv := range q.done.Items() {
		info := *kv.Record.Info
		snap.Done = append(snap.Done, SnapshotEntry{Key: kv.Key, Info: &info})
	}
	return snap
}

// drain is the single logical worker loop: block while idle, pop the oldest
// pending job, run it to completion, route the outcome. A job failing never
// stops the loop.
func (q *DownloadQueue) drain() {
	for {
		for q.queue.Empty() {
			slog.Info("Waiting for item to download")
			<-q.wake
		}
		kv, ok := q.queue.Next()
		if !ok {
			continue
		}

		q.mu.Lock()
		if !q.queue.Exists(kv.Key) {
			// Canceled between Next and here.
			q.mu.Unlock()
			continue
		}
		job := q.jobs[kv.Key]
		if job == nil {
			job = newDownload(kv.Record)
			q.jobs[kv.Key] = job
		}
		q.mu.Unlock()

		q.run(kv.Key, job)
	}
}

func (q *DownloadQueue) run(id string, job *Download) {
	slog.Info("Downloading", "id", id, "title", job.Info.Title)

	q.notifier.Updated(q.setStatus(job, models.StatusPreparing, ""))

	proc, err := q.engine.Download(job.Request, job.Info)
	if err != nil {
		q.notifier.Updated(q.setStatus(job, models.StatusError, err.Error()))
	} else {
		job.setProc(proc)
		// Cancel may have raced with worker startup.
		if job.Canceled() {
			proc.Kill()
		}
		for ev := range proc.Events() {
			q.mu.Lock()
			job.apply(ev)
			copied := *job.Info
			q.mu.Unlock()
			q.notifier.Updated(&copied)
		}
	}

	q.mu.Lock()
	finished := job.Info.Status == models.StatusFinished
	if !finished {
		job.Info.Status = models.StatusError
	}
	q.mu.Unlock()
	if !finished {
		job.cleanupTmp()
	}
	job.close()

	q.mu.Lock()
	if !q.queue.Exists(id) {
		// Removed mid-flight by a racing cancel.
		q.mu.Unlock()
		return
	}
	if err := q.queue.Delete(id); err != nil {
		slog.Error("Failed to persist queue", "id", id, "error", err)
	}
	delete(q.jobs, id)
	canceled := job.Canceled()
	copied := *job.Info
	q.mu.Unlock()

	if canceled {
		q.notifier.Canceled(id)
		return
	}
	if err := q.done.Put(storage.Record{Request: job.Request, Info: job.Info}); err != nil {
		slog.Error("Failed to persist archive", "id", id, "error", err)
	}
	q.notifier.Completed(&copied)
}

// setStatus mutates the job's observable record under the queue lock and
// returns a copy safe to hand to observers.
func (q *DownloadQueue) setStatus(job *Download, status models.Status, msg string) *models.DownloadInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Info.Status = status
	if msg != "" {
		job.Info.Msg = msg
	}
	copied := *job.Info
	return &copied
}
