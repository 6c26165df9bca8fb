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
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/config"
	"github.com/zhouzirui/z-chat/backend/internal/handler"
	"github.com/zhouzirui/z-chat/backend/internal/logging"
	"github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/internal/service/gateway"
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

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	replyGateway := newGateway(ctx, cfg, logger)

	chatService := chat.NewService(replyGateway, chat.Options{
		IDPolicy:     cfg.Chat.IDPolicy,
		BotImage:     cfg.Chat.BotAvatar,
		ReplyTimeout: cfg.Chat.ReplyTimeout,
		Clock:        chat.LayoutClock{Layout: cfg.Chat.TimestampLayout},
		Avatars:      chat.NewPravatarSource(0),
	}, logger.Named("chat"))

	router := handler.NewRouter(chatService, logger)

	startServer(ctx, cfg.Server, router, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := chatService.Close(shutdownCtx); err != nil {
		logger.Warn("chat service shutdown incomplete", zap.Error(err))
	}
}

// newGateway prefers the LLM when Ark credentials are present and falls
// back to the simulated bot otherwise.
func newGateway(ctx context.Context, cfg *config.Config, logger *zap.Logger) chat.Gateway {
	simulated := gateway.NewSimulated(nil, cfg.Chat.BotDelay, 0)

	if !cfg.AI.Enabled() {
		logger.Info("Ark 凭证未配置，使用模拟机器人回复")
		return simulated
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		logger.Warn("failed to create chat model, using simulated bot", zap.Error(err))
		return simulated
	}

	llm, err := gateway.NewLLM(ctx, chatModel, cfg.AI.SystemPrompt, logger.Named("llm"))
	if err != nil {
		logger.Warn("failed to initialize LLM gateway, using simulated bot", zap.Error(err))
		return simulated
	}

	logger.Info("LLM gateway initialized successfully", zap.String("model", cfg.AI.Model))
	return llm
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Z Chat backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
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
