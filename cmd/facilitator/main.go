package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"

	"github.com/chatzot/facilitator/internal/api"
	"github.com/chatzot/facilitator/internal/biz/usecase"
	"github.com/chatzot/facilitator/internal/conf"
	"github.com/chatzot/facilitator/internal/data"
	"github.com/chatzot/facilitator/internal/server"
	"github.com/chatzot/facilitator/internal/service"
	"github.com/chatzot/facilitator/llm"
)

const (
	logQueueSize    = 1024
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration; flags override the environment
	flags := conf.FlagSet()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Invalid flags: %v", err)
	}
	cfg := conf.LoadFromEnv()
	if err := cfg.ApplyFlags(flags); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "facilitator",
		Level: cfg.Level(),
	})
	if cfg.PromptsPath != "" {
		logger.Info("loaded prompts", "path", cfg.PromptsPath)
	} else {
		logger.Info("no prompts.yaml found, using defaults")
	}

	// Initialize repository layer
	client := llm.NewClient(cfg.ToLLMConfig())
	repos, err := data.NewRepositories(client, cfg.MessageLog.Type, cfg.MessageLog.Path)
	if err != nil {
		logger.Error("failed to create repositories", "error", err)
		os.Exit(1)
	}
	logger.Info("message log opened", "type", cfg.MessageLog.Type, "path", cfg.MessageLog.Path, "model", client.Model())

	// Initialize usecase layer
	clock := clockwork.NewRealClock()
	directory := usecase.NewRoomDirectory(clock, logger.Named("directory"), usecase.WithMaxMembers(cfg.LobbyMaxMembers))

	// Initialize service layer
	logs := service.NewLogWriter(repos.MessageLog, logger.Named("messagelog"), logQueueSize)
	logs.Start()

	hub := server.NewHub(logger.Named("hub"))
	sessions := service.NewSessionService(directory, repos.Completion, hub, logs, clock, logger.Named("session"), cfg.ToSessionConfig())
	hub.SetHandler(server.NewEventRouter(sessions, hub, clock, logger.Named("events"), 2*cfg.LLM.Timeout))

	// Initialize server
	admin := api.NewServer(sessions, logger.Named("api"))
	srv := server.NewHTTPServer(cfg.Addr, server.NewRouter(hub, admin), logger.Named("http"))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			logger.Warn("HTTP shutdown failed", "error", err)
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Error("server error", "error", err)
	}

	sessions.Shutdown()
	hub.Close()
	logs.Stop()
	if err := repos.Close(); err != nil {
		logger.Warn("message log close failed", "error", err)
	}
}
