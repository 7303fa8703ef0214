package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/demi-app/demi/backend/internal/config"
	"github.com/demi-app/demi/backend/internal/handler"
	"github.com/demi-app/demi/backend/internal/service/ai"
	authservice "github.com/demi-app/demi/backend/internal/service/auth"
	chatservice "github.com/demi-app/demi/backend/internal/service/chat"
	emotionservice "github.com/demi-app/demi/backend/internal/service/emotion"
	"github.com/demi-app/demi/backend/internal/storage/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	seed, err := config.LoadSeed(cfg.SeedPath)
	if err != nil {
		log.Fatalf("failed to load seed data: %v", err)
	}

	// Session authority with seeded accounts.
	authSvc := authservice.NewService(cfg.Auth)
	for _, user := range seed.Users {
		if _, err := authSvc.RegisterUser(user.Email, user.Password); err != nil {
			log.Fatalf("failed to seed user %s: %v", user.Email, err)
		}
	}
	log.Printf("seeded %d account(s)", len(seed.Users))

	// Conversation store: SQLite when a path is configured, memory otherwise.
	var store chatservice.Store
	if cfg.Store.SQLitePath != "" {
		sqlStore, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer sqlStore.Close()
		store = sqlStore
		log.Printf("using sqlite store at %s", cfg.Store.SQLitePath)
	} else {
		store = chatservice.NewMemoryStore()
		log.Println("using in-memory store; conversations will not survive restarts")
	}
	chatSvc := chatservice.NewService(store)

	// Companion responder: Ark model when configured, scripted fallback
	// otherwise.
	var responder ai.Responder
	var aiSvc *ai.Service
	if cfg.AI.Enabled() {
		aiSvc, err = ai.NewService(ctx, seed.Companion, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing with the scripted responder")
		}
	}
	if aiSvc != nil {
		responder = aiSvc
		log.Println("AI responder initialized successfully")
	} else {
		responder = ai.NewScripted(seed.Companion)
		log.Println("Ark credentials not configured, using scripted responder")
	}

	// Emotion classifier: LLM-backed when possible, heuristics otherwise.
	emotionCfg := emotionservice.Config{
		Enabled:      cfg.AI.EmotionLLMEnabled,
		HistoryLimit: cfg.AI.EmotionHistoryLimit,
	}
	var emotionSvc *emotionservice.Service
	if aiSvc != nil {
		emotionSvc, err = emotionservice.NewService(ctx, aiSvc.GetChatModel(), emotionCfg)
	} else {
		emotionSvc, err = emotionservice.NewService(ctx, nil, emotionCfg)
	}
	if err != nil {
		log.Fatalf("failed to initialize emotion service: %v", err)
	}
	if emotionSvc.Enabled() {
		log.Println("Emotion classifier enabled")
	} else {
		log.Println("Emotion classifier using keyword heuristics")
	}

	router := handler.NewRouter(seed.Companion, authSvc, chatSvc, responder, emotionSvc)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Demi backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
