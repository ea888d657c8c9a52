package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/harun/memdex/internal/cli"
)

func main() {
	// Variables already set in the environment take precedence over .env
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
