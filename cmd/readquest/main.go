package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"readquest/internal/config"
	"readquest/internal/server"
	"readquest/internal/storage"
	"readquest/internal/util"
	"readquest/pkg/ai"
	"readquest/pkg/books"
	"readquest/pkg/leaderboard"
	"readquest/pkg/quiz"
	"readquest/pkg/store"
	"readquest/pkg/tracker"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var dataStore store.Store
	if cfg.DatabaseURL != "" {
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init postgres store: %v", err)
		}
	} else {
		blob, err := store.NewFileBlobStore(cfg.DataPath)
		if err != nil {
			log.Fatalf("failed to init blob store: %v", err)
		}
		dataStore = store.NewMemoryStoreWithBlob(blob)
	}

	generator := ai.NewOpenAICompatGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	quizGen := quiz.NewGenerator(generator)
	searchClient := books.NewClient(cfg.GoogleBooksBaseURL, cfg.GoogleBooksAPIKey)
	trk := tracker.New(dataStore, quizGen)

	var board *leaderboard.Service
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		board = leaderboard.NewService(client, "readquest")
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object store: %v", err)
		}
	}

	httpServer := server.New(server.Config{
		Tracker:          trk,
		Quiz:             quizGen,
		Books:            searchClient,
		Leaderboard:      board,
		Objects:          objects,
		OpenAIConfigured: cfg.OpenAIAPIKey != "",
		MaxUploadBytes:   cfg.MaxUploadBytes,
		MaxExcerptRunes:  cfg.MaxExcerptRunes,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("readquest server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
