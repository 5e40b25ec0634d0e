package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"palin/internal/cli"
)

func main() {
	// .env is optional; the environment always wins over it
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
