package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/cmd/common"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/config"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/venue/bybit"
)

func main() {
	configPath := flag.String("config", "run.json", "Run configuration file path")
	envFile := flag.String("env", ".env", "Environment file with venue credentials")
	flag.Parse()

	cfg, err := config.LoadRunConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	cfg.Simulated = false

	creds, err := config.LoadCredentials(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Credentials error: %v\n", err)
		os.Exit(1)
	}
	if err := creds.RequireBybit(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	runner, err := common.NewRunner(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to assemble run: %v\n", err)
		os.Exit(1)
	}

	client := bybit.NewClient(bybit.ClientConfig{
		APIKey:    creds.BybitAPIKey,
		APISecret: creds.BybitAPISecret,
		Testnet:   creds.BybitTestnet,
	})
	runner.RegisterExecutor("bybit", bybit.NewExecutor(client, "bybit"))

	environment := "mainnet"
	if client.IsTestnet() {
		environment = "testnet"
	}
	fmt.Printf("🚀 Starting live run %s on Bybit %s\n", cfg.RunID, environment)
	fmt.Println("⚠️ LIVE TRADING MODE: orders place real positions")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runner.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️ Run ended early: %v\n", err)
		os.Exit(1)
	}

	if summary.FailedTicks > 0 || summary.InstructionsFailed > 0 {
		os.Exit(2)
	}
}
