package main

import (
	"os"

	"github.com/abhisek/missionz/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
