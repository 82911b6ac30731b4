package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/playrec/cmd"
	"github.com/tphakala/playrec/internal/app"
	"github.com/tphakala/playrec/internal/buildinfo"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   string
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := cmd.RootCommand(app.NewContext(buildinfo.New(version, buildDate)))
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
