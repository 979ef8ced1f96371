package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/adminvault/internal/buildinfo"
	"github.com/dmitrijs2005/adminvault/internal/client/cli"
	"github.com/dmitrijs2005/adminvault/internal/client/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	console, err := cli.NewConsole(ctx, cfg, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer console.Close()

	console.Run(ctx)

}
