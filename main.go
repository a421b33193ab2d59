package main

import (
	"os"

	"github.com/7homasISPG/HappyPlaceAIMode/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
