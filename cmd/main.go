package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/nexalabs/nexa-server/adapters"
	"github.com/nexalabs/nexa-server/adapters/live"
	"github.com/nexalabs/nexa-server/adapters/llm"
	nexmongo "github.com/nexalabs/nexa-server/adapters/mongo"
	nexredis "github.com/nexalabs/nexa-server/adapters/redis"
	"github.com/nexalabs/nexa-server/adapters/stt"
	"github.com/nexalabs/nexa-server/adapters/tts"
	"github.com/nexalabs/nexa-server/domain/repositories"
	"github.com/nexalabs/nexa-server/internal/api"
	"github.com/nexalabs/nexa-server/internal/auth"
	"github.com/nexalabs/nexa-server/internal/geo"
	"github.com/nexalabs/nexa-server/internal/websocket"
	"github.com/nexalabs/nexa-server/usecase"
)

func main() {
	// A .env file is optional; containers inject configuration directly.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	signer, err := auth.NewSignerFromEnv()
	if err != nil {
		logger.Fatal("Auth configuration invalid", zap.Error(err))
	}

	ctx := context.Background()

	// Fallback store used for any backend that is not configured.
	memory := adapters.NewMemoryStore()

	var conversations repositories.ConversationStore = memory
	var directory repositories.UserDirectory = memory
	var inquiries repositories.InquiryLog = memory
	if os.Getenv("MONGODB_URI") != "" {
		mongoClient, err := nexmongo.NewClient(nexmongo.NewConfigFromEnv(), logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer mongoClient.Close(ctx)
		conversations = nexmongo.NewConversationStore(mongoClient.Database, logger)
		directory = nexmongo.NewUserDirectory(mongoClient.Database)
		inquiries = nexmongo.NewInquiryLog(mongoClient.Database)
	} else {
		logger.Warn("MONGODB_URI not set, conversation memory is volatile")
	}

	var sessions repositories.IdentitySessionStore = memory
	if os.Getenv("REDIS_ADDR") != "" {
		redisClient, err := nexredis.NewClient(logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		sessions = nexredis.NewSessionStore(redisClient, 24*time.Hour, logger)
	} else {
		logger.Warn("REDIS_ADDR not set, session state is in-process")
	}

	inference, err := llm.NewGeminiClient(llm.GeminiConfig{}, logger)
	if err != nil {
		logger.Fatal("Failed to create inference client", zap.Error(err))
	}

	var synth repositories.SpeechSynthesizer
	if os.Getenv("TTS_PROVIDER") == "elevenlabs" {
		synth, err = tts.NewElevenLabsSynthesizer(tts.NewElevenLabsConfigFromEnv(), logger)
	} else {
		synth, err = tts.NewGeminiSynthesizer(ctx, tts.NewGeminiTTSConfigFromEnv(), logger)
	}
	if err != nil {
		logger.Fatal("Failed to create speech synthesizer", zap.Error(err))
	}

	liveConfig := live.NewGeminiLiveConfigFromEnv()
	// Validate the live configuration once so per-connection construction
	// cannot fail later with the same inputs.
	fallbackLive, err := live.NewGeminiLive(ctx, liveConfig, logger)
	if err != nil {
		logger.Fatal("Failed to create live client", zap.Error(err))
	}
	liveFactory := func() repositories.LiveClient {
		client, err := live.NewGeminiLive(context.Background(), liveConfig, logger)
		if err != nil {
			logger.Error("Failed to create live client", zap.Error(err))
			return fallbackLive
		}
		return client
	}

	hub := websocket.NewHub(websocket.OrchestratorDeps{
		Store:       conversations,
		Sessions:    sessions,
		Inference:   inference,
		Synth:       synth,
		STT:         stt.NewGoogleSpeechToText(logger),
		LiveFactory: liveFactory,
		Location:    geo.NewResolverFromEnv(logger),
		Actions:     usecase.NewActionExecutor(inquiries, logger),
		Clock:       clock.New(),
	}, logger)
	go hub.Run()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := api.NewServer(hub, signer, directory, conversations, inquiries, logger)
	server.InitRoutes(e)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
