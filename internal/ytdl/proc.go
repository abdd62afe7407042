package ytdl

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/philipphutterer/metube/internal/models"
)

// Line prefixes used to multiplex the two hook streams over the worker's
// output pipes. Both templates are passed to yt-dlp so every event arrives as
// one tagged line.
const (
	progressPrefix = "METUBE_PROGRESS "
	movedPrefix    = "METUBE_MOVED "
)

const eventBuffer = 64

// ProgressEvent is one structured status report from a download worker.
// Every field is optional per event; numeric fields are pointers so "not
// reported" is distinguishable from zero.
type ProgressEvent struct {
	Status             string   `json:"status"`
	Msg                string   `json:"msg,omitempty"`
	TmpFilename        string   `json:"tmpfilename"`
	Filename           string   `json:"filename"`
	DownloadedBytes    *float64 `json:"downloaded_bytes"`
	TotalBytes         *float64 `json:"total_bytes"`
	TotalBytesEstimate *float64 `json:"total_bytes_estimate"`
	Speed              *float64 `json:"speed"`
	ETA                *float64 `json:"eta"`
}

// Proc is one isolated download worker: a yt-dlp process whose tagged output
// is decoded onto a bounded event channel. The channel is closed only after
// both pipes are drained and the process has been reaped, so a consumer that
// ranges over Events sees every event in production order followed by exactly
// one terminal event.
type Proc struct {
	cmd    *exec.Cmd
	events chan ProgressEvent

	mu       sync.Mutex
	lastLine string
}

// Download spawns a worker process for the job described by req/info. The
// transfer runs entirely in the child; killing it cannot corrupt the caller.
func (c *Client) Download(req *models.DownloadRequest, info *models.DownloadInfo) (*Proc, error) {
	sel := SelectFormat(req.Format, req.Quality)

	args := []string{
		"--quiet", "--no-color", "--newline", "--progress",
		"--progress-template", "download:" + progressPrefix + "%(progress)j",
		"--print", "after_move:" + movedPrefix + "%(filepath)s",
		"--paths", "home:" + info.DownloadDir,
		"--output", info.OutputTemplate,
		"--output", "chapter:" + info.OutputTemplateChapter,
		"--socket-timeout", c.socketTimeout(),
	}
	if sel.Format != "" {
		args = append(args, "--format", sel.Format)
	}
	args = append(args, sel.Args...)
	args = append(args, info.URL)

	cmd := workerCommand(c.executable(), args)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, &EngineError{Msg: "failed to start yt-dlp: " + err.Error()}
	}

	p := &Proc{cmd: cmd, events: make(chan ProgressEvent, eventBuffer)}

	var wg sync.WaitGroup
	wg.Add(2)
	go p.scan(stdout, &wg)
	go p.scan(stderr, &wg)

	go func() {
		wg.Wait()
		err := cmd.Wait()
		if err != nil {
			// Covers both library failures and a worker that died without
			// ever reporting a terminal status.
			p.events <- ProgressEvent{Status: string(models.StatusError), Msg: p.errorMessage(err)}
		} else {
			p.events <- ProgressEvent{Status: string(models.StatusFinished)}
		}
		close(p.events)
	}()

	return p, nil
}

// Events returns the worker's ordered progress stream.
func (p *Proc) Events() <-chan ProgressEvent {
	return p.events
}

// workerCommand builds the worker process in its own process group, so a
// kill reaches the post-processing children yt-dlp spawns (ffmpeg) too.
func workerCommand(path string, args []string) *exec.Cmd {
	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

// Kill forcibly terminates the worker's whole process group. The event
// channel still closes normally once the pipes drain.
func (p *Proc) Kill() error {
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

func (p *Proc) scan(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if ev, ok := parseEventLine(line); ok {
			p.events <- ev
			continue
		}
		slog.Debug("yt-dlp output", "line", line)
		p.mu.Lock()
		p.lastLine = line
		p.mu.Unlock()
	}
}

func (p *Proc) errorMessage(waitErr error) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastLine != "" {
		return p.lastLine
	}
	return waitErr.Error()
}

// parseEventLine decodes one tagged output line. Progress lines carry the
// full yt-dlp progress dict as JSON; moved lines carry the authoritative
// final path chosen by the MoveFiles post-processor and map onto a finished
// event so the coordinator prefers that filename.
func parseEventLine(line string) (ProgressEvent, bool) {
	switch {
	case strings.HasPrefix(line, progressPrefix):
		var ev ProgressEvent
		if err := json.Unmarshal([]byte(line[len(progressPrefix):]), &ev); err != nil {
			return ProgressEvent{}, false
		}
		return ev, true
	case strings.HasPrefix(line, movedPrefix):
		return ProgressEvent{
			Status:   string(models.StatusFinished),
			Filename: strings.TrimSpace(line[len(movedPrefix):]),
		}, true
	}
	return ProgressEvent{}, false
}
