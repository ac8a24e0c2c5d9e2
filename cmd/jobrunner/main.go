package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/RevCBH/jobrunner/internal/cli"
	"github.com/joho/godotenv"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// a .env file is optional; variables already set win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: load .env: %v\n", err)
		os.Exit(1)
	}

	app := cli.New()
	app.SetVersion(version, commit, date)

	// Execute logs the failure itself, with secrets masked
	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}
