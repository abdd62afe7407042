package config

import (
	"log/slog"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"HOST", "PORT", "LOG_LEVEL", "DOWNLOAD_DIR", "AUDIO_DOWNLOAD_DIR",
		"STATE_DIR", "CUSTOM_DIRS", "CREATE_CUSTOM_DIRS", "DELETE_FILE_ON_TRASHCAN",
		"OUTPUT_TEMPLATE", "OUTPUT_TEMPLATE_CHAPTER", "YTDL_PATH", "SOCKET_TIMEOUT",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	if cfg.Host != "0.0.0.0" || cfg.Port != "8081" {
		t.Errorf("unexpected default address %s:%s", cfg.Host, cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("expected default log level info, got %v", cfg.LogLevel)
	}
	if cfg.DownloadDir != "./downloads" {
		t.Errorf("unexpected default download dir %q", cfg.DownloadDir)
	}
	if cfg.AudioDownloadDir != cfg.DownloadDir {
		t.Error("audio download dir should default to the download dir")
	}
	if !cfg.CustomDirs || !cfg.CreateCustomDirs || !cfg.DeleteFileOnTrashcan {
		t.Error("directory and trashcan toggles should default to true")
	}
	if cfg.OutputTemplate != "%(title)s.%(ext)s" {
		t.Errorf("unexpected default output template %q", cfg.OutputTemplate)
	}
	if cfg.YTDLPath != "yt-dlp" || cfg.SocketTimeout != 30 {
		t.Errorf("unexpected engine defaults %q / %d", cfg.YTDLPath, cfg.SocketTimeout)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DOWNLOAD_DIR", "/data/video")
	t.Setenv("AUDIO_DOWNLOAD_DIR", "/data/audio")
	t.Setenv("CUSTOM_DIRS", "no")
	t.Setenv("DELETE_FILE_ON_TRASHCAN", "0")
	t.Setenv("SOCKET_TIMEOUT", "15")

	cfg := LoadConfig()

	if cfg.Host != "127.0.0.1" || cfg.Port != "9090" {
		t.Errorf("unexpected address %s:%s", cfg.Host, cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.LogLevel)
	}
	if cfg.DownloadDir != "/data/video" || cfg.AudioDownloadDir != "/data/audio" {
		t.Errorf("unexpected dirs %q / %q", cfg.DownloadDir, cfg.AudioDownloadDir)
	}
	if cfg.CustomDirs || cfg.DeleteFileOnTrashcan {
		t.Error("disabled toggles should parse as false")
	}
	if cfg.SocketTimeout != 15 {
		t.Errorf("expected socket timeout 15, got %d", cfg.SocketTimeout)
	}
}

func TestBoolEnv(t *testing.T) {
	tests := []struct {
		value    string
		def      bool
		expected bool
	}{
		{value: "", def: true, expected: true},
		{value: "", def: false, expected: false},
		{value: "true", def: false, expected: true},
		{value: "YES", def: false, expected: true},
		{value: "on", def: false, expected: true},
		{value: "1", def: false, expected: true},
		{value: "false", def: true, expected: false},
		{value: "anything", def: true, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("METUBE_TEST_BOOL", tt.value)
			if got := boolEnv("METUBE_TEST_BOOL", tt.def); got != tt.expected {
				t.Errorf("boolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.expected)
			}
		})
	}
}
