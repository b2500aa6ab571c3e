package main

import (
	"context"
	"os"

	"github.com/benmeehan/proximity-agent/internal/cli"
)

var version = "dev"

func main() {
	exitCode := cli.Execute(context.Background(), os.Args[1:], cli.DefaultDependencies(version), os.Stdout, os.Stderr)
	os.Exit(exitCode)
}
