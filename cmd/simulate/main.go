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
)

func main() {
	configPath := flag.String("config", "run.json", "Run configuration file path")
	flag.Parse()

	cfg, err := config.LoadRunConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	cfg.Simulated = true

	runner, err := common.NewRunner(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to assemble run: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("🚀 Starting simulated run %s\n", cfg.RunID)
	summary, err := runner.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️ Run ended early: %v\n", err)
		os.Exit(1)
	}

	if summary.FailedTicks > 0 || summary.InstructionsFailed > 0 {
		os.Exit(2)
	}
}
