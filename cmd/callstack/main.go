package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"callstack/internal/cli"
	"callstack/internal/output"
)

func main() {
	if err := run(); err != nil {
		formatter := output.NewFormatter(os.Stderr)
		formatter.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	// SIGINT is left to the record command, which discards the recording on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	return cli.Execute(ctx, &cli.Dependencies{}, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}
