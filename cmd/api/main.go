package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/internal/db"
	"github.com/xpanvictor/vocall/internal/domains/dialer"
	callrepo "github.com/xpanvictor/vocall/internal/repository/call"
	"github.com/xpanvictor/vocall/internal/server"
	"github.com/xpanvictor/vocall/pkg/Logger"
	"github.com/xpanvictor/vocall/pkg/assistant"
	"github.com/xpanvictor/vocall/pkg/io/stt"
	"github.com/xpanvictor/vocall/pkg/io/tts"
)

// Domain words the transcriber keeps mishearing over 8k telephone audio.
const transcriptionHints = "team building, team-building event, participants, workshop, offsite, booking"

// This is the main entry point for the voice agent server.
// Loads in all system components
// Exposes functionalities
func main() {
	// fetch cfg
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	// load global logger
	logger := Logger.New(cfg.Debug)
	logger.Info("Logger initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// fetch database connection
	gdb, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// handle migrations
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	store := callrepo.NewGormCallRepo(gdb)

	// synthesis chain, most natural voice first, tone generator as the
	// never-fails floor
	providers := []tts.Provider{}
	if cfg.ElevenLabs.APIKey != "" {
		el, err := tts.NewElevenLabs(cfg.ElevenLabs, logger)
		if err != nil {
			logger.Warnf("elevenlabs unavailable: %v", err)
		} else {
			providers = append(providers, el)
		}
	}
	if cfg.OpenAI.APIKey != "" {
		providers = append(providers, tts.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.TTSModel, cfg.OpenAI.TTSVoice, logger))
	}
	providers = append(providers, tts.NewPiper(cfg.Piper, logger), tts.NewTone())
	chain, err := tts.NewChain(logger, providers...)
	if err != nil {
		log.Fatalf("Failed to build synthesis chain: %v", err)
	}
	voice, err := tts.NewCache(chain, cfg.Cache.Dir, logger)
	if err != nil {
		log.Fatalf("Failed to open synthesis cache: %v", err)
	}
	defer voice.Close()
	if len(cfg.Cache.PrewarmPhrases) > 0 {
		go voice.Prewarm(ctx, cfg.Cache.PrewarmPhrases)
	}

	// speech recognition
	transcriber := stt.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.Language, transcriptionHints, logger)
	recognizer := stt.NewRecognizer(
		transcriber,
		cfg.OpenAI.TranscribeModel,
		cfg.OpenAI.TranscribeFallbackModel,
		transcriptionHints,
		logger,
	)

	// language models, hosted primary with a hosted fallback
	llms := []assistant.Assistant{assistant.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel)}
	if cfg.Gemini.APIKey != "" {
		gem, err := assistant.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			logger.Warnf("gemini unavailable: %v", err)
		} else {
			llms = append(llms, gem)
		}
	}
	llm := assistant.NewMux(logger, llms...)

	dialerService := dialer.New(cfg.Dialer, cfg.Server.PublicHost, store, logger)

	// compose router
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	dep := server.NewServerDependencies(store, recognizer, voice, llm, dialerService, cfg, logger)
	server.InitializeRoutes(router, dep)

	// listen with graceful exit
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router.Handler(),
	}
	go func() {
		logger.Infof("Listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server exiting %v", err)
		}
	}()

	<-ctx.Done()
	stop()

	// 5 secs then cancel
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Shutdown err %v", err)
	}
	logger.Info("Shutdown system")
}
