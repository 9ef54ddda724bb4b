package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/config"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/explainws"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/httpserver"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/infra/storage"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/llm"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/notes"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/session"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/transcript"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/transport"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/tts"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/tutor"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	chat := llm.NewGroqClient(cfg.GroqAPIKey, cfg.GroqChatModel)
	stt := transcript.NewWhisperClient(cfg.GroqAPIKey, cfg.GroqSTTModel)
	narrator := tts.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.DeepgramModel)
	assetSynth := tts.NewMinimaxClient(cfg.MinimaxAPIKey, cfg.MinimaxGroupID, cfg.MinimaxVoice)
	tutorSvc := tutor.NewService(stt, chat, assetSynth)

	var assets *storage.Supabase
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		var err error
		assets, err = storage.New(storage.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Fatalf("supabase init: %v", err)
		}
	}

	var store *notes.Store
	if cfg.PostgresDSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
			Logger: gormLogger.Default.LogMode(gormLogger.Warn),
		})
		if err != nil {
			log.Fatalf("postgres connect: %v", err)
		}
		store = notes.NewStore(db)
		if err := store.AutoMigrate(); err != nil {
			log.Fatalf("postgres migrate: %v", err)
		}
	}

	// streaming transport drives the interactive socket; the request/response
	// transport serves the plain HTTP surface with caching
	var objectStore transport.ObjectStore
	var assetStore transport.AssetStore
	if assets != nil {
		objectStore = assets
		assetStore = assets
	}
	var cache transport.Cache
	var saver session.NoteSaver
	var lister httpserver.NotesLister
	var finder explainws.NoteFinder
	if store != nil {
		cache = store
		saver = store
		lister = store
		finder = store
	}

	streaming := transport.NewStreaming(chat, narrator, objectStore, transport.Progress{})
	if store != nil {
		var fetch transport.AssetFetcher
		if assets != nil {
			fetch = assets
		}
		streaming.EnableNoteReuse(store, fetch)
	}
	reqResp := transport.NewRequestResponse(chat, assetSynth, cache, assetStore)

	e := httpserver.New()
	auth := httpserver.RequireJWT(cfg.JWTSecret)
	httpserver.NewHandlers(reqResp, tutorSvc, lister).Register(e, auth)
	explainws.NewHandler(explainws.Deps{
		Transport: streaming,
		Tutor:     tutorSvc,
		Saver:     saver,
		Notes:     finder,
		Timeout:   cfg.RequestTimeout,
	}).Register(e, auth)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	streaming.Close()
	reqResp.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
