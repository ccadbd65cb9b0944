package main

import (
	"fmt"
	"os"

	"github.com/tattler-mx/tattler-go/cmd"
	"github.com/tattler-mx/tattler-go/internal/config"
	"github.com/tattler-mx/tattler-go/internal/logging"
)

func main() {
	ctx, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := logging.ParseLevel(ctx.Settings.Main.LogLevel)
	logging.Init(level)

	rootCmd := cmd.RootCommand(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
