// Feed tail prints every reading published by a running exporter's live feed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NotCoffee418/iec62056_exporter/pkg/livefeed"
	log "github.com/sirupsen/logrus"
)

func main() {
	// Set the host:port from env var EXPORTER_HOST
	host := os.Getenv("EXPORTER_HOST")
	if host == "" {
		host = "localhost:3223"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Subscribe to websocket with revive
	if err := livefeed.Listen(ctx, host, livefeed.DefaultListenerOptions, printUpdate); err != nil {
		log.Fatal(err)
	}
}

func printUpdate(update *livefeed.Update) {
	fmt.Println(string(update.ToJsonBytes()))
}
