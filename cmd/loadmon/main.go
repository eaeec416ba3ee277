package main

import (
	"fmt"
	"os"

	"github.com/aman-churiwal/loadmon/internal/cli"
	"github.com/joho/godotenv"
)

func main() {
	// Load env if it exists
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
