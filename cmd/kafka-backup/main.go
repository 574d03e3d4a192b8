package main

import (
	"os"

	"github.com/quantica-technologies/kafka-backup-operator/cmd/kafka-backup/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
