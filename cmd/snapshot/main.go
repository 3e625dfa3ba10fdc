// Package main writes a static bundle of selected pages from the command
// line. It exits 2 when the bundle was written but is incomplete.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	snapshotcmd "github.com/louisbranch/pagesnap/internal/cmd/snapshot"
	"github.com/louisbranch/pagesnap/internal/platform/config"
)

func main() {
	cfg, err := snapshotcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[SNAPSHOT] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = snapshotcmd.Run(ctx, cfg, os.Stdout)
	stop()
	switch {
	case err == nil:
	case errors.Is(err, snapshotcmd.ErrIncomplete):
		config.ExitCodef(2, "snapshot: %v", err)
	default:
		config.Exitf("snapshot: %v", err)
	}
}
