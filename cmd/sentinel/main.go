package main

import (
	"os"

	"github.com/DentaMind/SmartDentalAI-sub000/cmd/sentinel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
