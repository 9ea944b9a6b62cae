package main

import (
	"context"
	"log"
	"os"

	core "taskmarket-backend/core/marketplace"
	"taskmarket-backend/mcp"
	"taskmarket-backend/services"
	storage "taskmarket-backend/storage/marketplace"
	"taskmarket-backend/token"

	"github.com/mark3labs/mcp-go/server"
)

type config struct {
	StoreDriver string
	PGDSN       string
}

func loadConfig() config {
	storeDriver := os.Getenv("MCP_STORE_DRIVER")
	if storeDriver == "" {
		storeDriver = "memory"
	}

	return config{
		StoreDriver: storeDriver,
		PGDSN:       os.Getenv("MCP_PG_DSN"),
	}
}

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	var ledger core.Ledger
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.PGDSN == "" {
			log.Fatal("MCP_PG_DSN required when MCP_STORE_DRIVER=postgres")
		}
		pg, err := storage.NewPGStore(ctx, cfg.PGDSN)
		if err != nil {
			log.Fatalf("failed to init store: %v", err)
		}
		defer pg.Close()
		ledger = pg
	default:
		ledger = storage.NewMemoryStore()
	}

	vault := token.NewVault()
	engine := core.NewEngine(ledger, vault, nil)
	fundingSvc := services.NewFundingService(engine)

	mcpServer := mcp.NewMCPServer(engine, fundingSvc)

	log.Printf("Task marketplace MCP server starting (driver=%s)", cfg.StoreDriver)

	if err := server.ServeStdio(mcpServer.GetMCPServer()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
