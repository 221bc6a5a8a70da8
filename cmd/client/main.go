// Package main is the localfirst command line tool. It reads and writes app
// data on the configured medium directly.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/datavtar/localfirst/internal/client"
)

var (
	version   string
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	cli := client.New(os.Stdin, os.Stdout, os.Stderr)
	cli.Version, cli.BuildDate = version, buildDate
	if err := cli.Execute(ctx, os.Args[1:]); err != nil {
		client.PrintError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
