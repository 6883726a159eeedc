package main

import (
	"os"

	"github.com/localrivet/dialoguesum/cmd/dialoguesum/app"
)

func main() {
	if err := app.NewDialogueSumCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
