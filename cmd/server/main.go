package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lmittmann/tint"

	"github.com/philipphutterer/metube/internal/config"
	"github.com/philipphutterer/metube/internal/handler"
	"github.com/philipphutterer/metube/internal/models"
	"github.com/philipphutterer/metube/internal/queue"
	"github.com/philipphutterer/metube/internal/websocket"
	"github.com/philipphutterer/metube/internal/ytdl"
)

func main() {
	cfg := config.LoadConfig()
	SetupLogger(cfg.LogLevel)

	os.MkdirAll(cfg.DownloadDir, os.ModePerm)
	os.MkdirAll(cfg.AudioDownloadDir, os.ModePerm)

	var dqueue *queue.DownloadQueue
	hub := websocket.NewHub(func() any { return dqueue.Get() })
	go hub.Run()

	client := &ytdl.Client{Path: cfg.YTDLPath, SocketTimeout: cfg.SocketTimeout}
	dqueue = queue.New(cfg, hub, engine{client: client})
	dqueue.Start()

	r := chi.NewRouter()
	r.Handle("/", http.FileServer(http.Dir("static")))
	r.Post("/add", handler.AddHandler(dqueue))
	r.Post("/delete", handler.DeleteHandler(dqueue))
	r.Get("/downloads", handler.DownloadsHandler(dqueue))
	r.Handle("/download/*", http.StripPrefix("/download/", http.FileServer(http.Dir(cfg.DownloadDir))))
	r.Handle("/audio_download/*", http.StripPrefix("/audio_download/", http.FileServer(http.Dir(cfg.AudioDownloadDir))))
	r.Get("/ws", hub.WsHandler)

	server := &http.Server{Addr: net.JoinHostPort(cfg.Host, cfg.Port), Handler: r}
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server forced to shutdown")
		}
		done <- true
	}()

	slog.Info("Server starting", "host", cfg.Host, "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to start server", "error", err)
	}
	<-done
	slog.Info("Server exited")
}

// engine adapts the yt-dlp client to the queue's Engine interface.
type engine struct {
	client *ytdl.Client
}

func (e engine) Extract(ctx context.Context, url string) (*ytdl.Entry, error) {
	return e.client.Extract(ctx, url)
}

func (e engine) Download(req *models.DownloadRequest, info *models.DownloadInfo) (queue.Proc, error) {
	return e.client.Download(req, info)
}

func SetupLogger(level slog.Level) {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05",
		AddSource:  true,
	})

	slog.SetDefault(slog.New(handler))
}
