package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Host                  string
	Port                  string
	LogLevel              slog.Level
	DownloadDir           string
	AudioDownloadDir      string
	StateDir              string
	CustomDirs            bool
	CreateCustomDirs      bool
	DeleteFileOnTrashcan  bool
	OutputTemplate        string
	OutputTemplateChapter string
	YTDLPath              string
	SocketTimeout         int
}

func LoadConfig() Config {
	host := os.Getenv("HOST")
	if host == "" {
		host = "0.0.0.0"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}
	logLevelString := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	if logLevelString == "" {
		logLevelString = "INFO"
	}
	var logLevel slog.Level
	switch logLevelString {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "INFO":
		logLevel = slog.LevelInfo
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	downloadDir := os.Getenv("DOWNLOAD_DIR")
	if downloadDir == "" {
		downloadDir = "./downloads"
	}
	audioDownloadDir := os.Getenv("AUDIO_DOWNLOAD_DIR")
	if audioDownloadDir == "" {
		audioDownloadDir = downloadDir
	}
	stateDir := os.Getenv("STATE_DIR")
	if stateDir == "" {
		stateDir = "."
	}
	outputTemplate := os.Getenv("OUTPUT_TEMPLATE")
	if outputTemplate == "" {
		outputTemplate = "%(title)s.%(ext)s"
	}
	outputTemplateChapter := os.Getenv("OUTPUT_TEMPLATE_CHAPTER")
	if outputTemplateChapter == "" {
		outputTemplateChapter = "%(title)s - %(section_number)s %(section_title)s.%(ext)s"
	}
	ytdlPath := os.Getenv("YTDL_PATH")
	if ytdlPath == "" {
		ytdlPath = "yt-dlp"
	}
	socketTimeout := 30
	if v, err := strconv.Atoi(os.Getenv("SOCKET_TIMEOUT")); err == nil && v > 0 {
		socketTimeout = v
	}

	return Config{
		Host:                  host,
		Port:                  port,
		LogLevel:              logLevel,
		DownloadDir:           downloadDir,
		AudioDownloadDir:      audioDownloadDir,
		StateDir:              stateDir,
		CustomDirs:            boolEnv("CUSTOM_DIRS", true),
		CreateCustomDirs:      boolEnv("CREATE_CUSTOM_DIRS", true),
		DeleteFileOnTrashcan:  boolEnv("DELETE_FILE_ON_TRASHCAN", true),
		OutputTemplate:        outputTemplate,
		OutputTemplateChapter: outputTemplateChapter,
		YTDLPath:              ytdlPath,
		SocketTimeout:         socketTimeout,
	}
}

// StatePath resolves the backing file for one of the persistent queues.
func (c Config) StatePath(name string) string {
	return filepath.Join(c.StateDir, name)
}

func boolEnv(key string, def bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return def
	}
	switch v {
	case "true", "yes", "on", "1":
		return true
	default:
		return false
	}
}
