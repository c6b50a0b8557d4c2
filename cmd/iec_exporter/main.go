// IEC exporter signs on to the meter, reads its data blocks and serves them
// as Prometheus metrics and a live websocket feed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/iec62056_exporter/pkg/config"
	"github.com/NotCoffee418/iec62056_exporter/pkg/iec62056"
	"github.com/NotCoffee418/iec62056_exporter/pkg/livefeed"
	"github.com/NotCoffee418/iec62056_exporter/pkg/logging"
	"github.com/NotCoffee418/iec62056_exporter/pkg/metrics"
	"github.com/NotCoffee418/iec62056_exporter/pkg/session"
	"github.com/NotCoffee418/iec62056_exporter/pkg/transport"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load config
	if err := config.LoadExporterConfig(); err != nil {
		log.Fatalf("Failed to load exporter config: %v", err)
	}
	cfg := config.ActiveExporterConfig

	if err := logging.Setup(cfg.Logging); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	port, err := transport.Open(cfg.TransportSettings())
	if err != nil {
		log.Fatalf("Failed to open meter port: %v", err)
	}

	metricsSink := metrics.NewSink()
	sinks := []session.Sink{metricsSink}

	// Setup HTTP handlers
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsSink.Handler())
	if cfg.HTTP.LiveFeed {
		feed := livefeed.New()
		sinks = append(sinks, feed)
		mux.HandleFunc("/latest", feed.ServeLatest)
		mux.HandleFunc("/ws", feed.ServeWS)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		response := map[string]string{
			"message": "IEC 62056-21 Meter Exporter",
			"status":  "running",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Starting IEC 62056-21 Meter Exporter on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		driver := session.NewDriver(port, iec62056.NewHandshaker(cfg.Capabilities()), cfg.RetryPolicy(), sinks...)
		return driver.Run(ctx)
	})

	err = g.Wait()
	port.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Exporter stopped: %v", err)
	}
	log.Println("Shut down cleanly")
}
