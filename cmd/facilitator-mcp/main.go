package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chatzot/facilitator/internal/mcp"
)

const version = "1.0.0"

// facilitator-mcp exposes the facilitator admin API as MCP tools over stdio.
func main() {
	// stdout carries the protocol
	log.SetOutput(os.Stderr)

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	apiURL := os.Getenv("FACILITATOR_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := mcp.NewServer(mcp.NewHandler(mcp.NewClient(apiURL)), version)
	if err := server.Run(ctx, &sdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
