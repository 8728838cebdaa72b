package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/FranksOps/curator/cmd"
)

func init() {
	// A missing .env is fine; the environment is used as is.
	_ = godotenv.Load()
}

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
