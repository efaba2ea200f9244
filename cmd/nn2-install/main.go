package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rafaelmartins/nn2-install/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cli.Version = version
	cli.Commit = commit

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.NewRootCommand(os.Stdout, os.Stderr))
	stop()

	os.Exit(code)
}
