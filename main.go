package main

import (
	"os"

	"github.com/AlexxIT/framepump/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
