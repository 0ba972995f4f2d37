package main

import (
	"context"
	"os"

	"github.com/atlas-agent/atlas/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
