package ytdl

import (
	"bufio"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestParseEventLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantOK   bool
		check    func(t *testing.T, ev ProgressEvent)
	}{
		{
			name:   "progress line",
			line:   progressPrefix + `{"status":"downloading","downloaded_bytes":512,"total_bytes":1024,"speed":128.5,"eta":4,"tmpfilename":"video.mp4.part"}`,
			wantOK: true,
			check: func(t *testing.T, ev ProgressEvent) {
				if ev.Status != "downloading" {
					t.Errorf("expected status downloading, got %q", ev.Status)
				}
				if ev.DownloadedBytes == nil || *ev.DownloadedBytes != 512 {
					t.Error("downloaded_bytes not parsed")
				}
				if ev.TotalBytes == nil || *ev.TotalBytes != 1024 {
					t.Error("total_bytes not parsed")
				}
				if ev.Speed == nil || *ev.Speed != 128.5 {
					t.Error("speed not parsed")
				}
				if ev.ETA == nil || *ev.ETA != 4 {
					t.Error("eta not parsed")
				}
				if ev.TmpFilename != "video.mp4.part" {
					t.Errorf("unexpected tmpfilename %q", ev.TmpFilename)
				}
			},
		},
		{
			name:   "progress line with null fields",
			line:   progressPrefix + `{"status":"downloading","downloaded_bytes":512,"total_bytes":null,"total_bytes_estimate":2048.7,"speed":null,"eta":null}`,
			wantOK: true,
			check: func(t *testing.T, ev ProgressEvent) {
				if ev.TotalBytes != nil {
					t.Error("total_bytes should be nil")
				}
				if ev.TotalBytesEstimate == nil || *ev.TotalBytesEstimate != 2048.7 {
					t.Error("total_bytes_estimate not parsed")
				}
				if ev.Speed != nil || ev.ETA != nil {
					t.Error("null speed/eta should stay nil")
				}
			},
		},
		{
			name:   "moved line becomes finished with final filename",
			line:   movedPrefix + "/downloads/My Video.mp4",
			wantOK: true,
			check: func(t *testing.T, ev ProgressEvent) {
				if ev.Status != "finished" {
					t.Errorf("expected status finished, got %q", ev.Status)
				}
				if ev.Filename != "/downloads/My Video.mp4" {
					t.Errorf("unexpected filename %q", ev.Filename)
				}
			},
		},
		{
			name:   "malformed progress json",
			line:   progressPrefix + `{"status":`,
			wantOK: false,
		},
		{
			name:   "untagged output line",
			line:   "[download] Destination: video.mp4",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := parseEventLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("parseEventLine(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if tt.check != nil {
				tt.check(t, ev)
			}
		})
	}
}

func TestKillTerminatesProcessGroup(t *testing.T) {
	// The shell stands in for the worker; its backgrounded sleep plays the
	// role of a spawned post-processor.
	cmd := workerCommand("sh", []string{"-c", "sleep 30 & echo $!; wait"})
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}

	sc := bufio.NewScanner(stdout)
	if !sc.Scan() {
		t.Fatal("worker never reported its child pid")
	}
	childPid, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil {
		t.Fatalf("unexpected child pid line %q", sc.Text())
	}

	p := &Proc{cmd: cmd, events: make(chan ProgressEvent, 1)}
	if err := p.Kill(); err != nil {
		t.Fatalf("kill failed: %v", err)
	}
	cmd.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(childPid, 0); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("child process survived the kill")
}

func TestEntryKind(t *testing.T) {
	tests := []struct {
		name     string
		entry    Entry
		expected string
	}{
		{name: "empty type is video", entry: Entry{}, expected: "video"},
		{name: "playlist", entry: Entry{Type: "playlist"}, expected: "playlist"},
		{name: "url passthrough", entry: Entry{Type: "url_transparent"}, expected: "url_transparent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Kind(); got != tt.expected {
				t.Errorf("expected kind %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestEntrySourceURL(t *testing.T) {
	e := Entry{URL: "https://short/x", WebpageURL: "https://example.com/watch?v=x"}
	if got := e.SourceURL(); got != "https://example.com/watch?v=x" {
		t.Errorf("expected webpage url preferred, got %q", got)
	}
	e.WebpageURL = ""
	if got := e.SourceURL(); got != "https://short/x" {
		t.Errorf("expected raw url fallback, got %q", got)
	}
}
