package livefeed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var ErrListenerGaveUp = errors.New("live feed listener gave up")

type ListenerOptions struct {
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	// The exporter publishes at least once per meter burst, so a feed that
	// stays silent for longer than this is considered dead.
	ReadTimeout  time.Duration
	PingInterval time.Duration
}

var DefaultListenerOptions = ListenerOptions{
	MaxRetries:     10,
	BaseRetryDelay: 2 * time.Second,
	MaxRetryDelay:  60 * time.Second,
	ReadTimeout:    5 * time.Minute,
	PingInterval:   30 * time.Second,
}

// Listen subscribes to the /ws feed on host and calls handle for every
// update, reconnecting with exponential backoff. It returns nil when ctx is
// cancelled.
func Listen(ctx context.Context, host string, opts ListenerOptions, handle func(update *Update)) error {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	retryCount := 0

	for {
		if retryCount > 0 {
			// Calculate retry delay with exponential backoff
			retryDelay := time.Duration(1<<(retryCount-1)) * opts.BaseRetryDelay
			if retryDelay > opts.MaxRetryDelay {
				retryDelay = opts.MaxRetryDelay
			}
			log.Printf("Retrying connection in %v... (attempt %d/%d)", retryDelay, retryCount+1, opts.MaxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil
			}
		}

		log.Printf("Connecting to %s", u.String())
		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("Connection failed: %v", err)
			retryCount++
			if retryCount >= opts.MaxRetries {
				return fmt.Errorf("%w after %d attempts: %w", ErrListenerGaveUp, retryCount, err)
			}
			continue
		}

		log.Println("Connected! Accepting meter readings.")
		retryCount = 0

		broken := handleConnection(ctx, c, opts, handle)
		c.Close()
		if !broken {
			return nil
		}
		log.Println("Connection lost, will retry...")
		retryCount = 1
	}
}

// handleConnection reads updates until the connection breaks (true) or ctx
// is cancelled (false).
func handleConnection(ctx context.Context, c *websocket.Conn, opts ListenerOptions, handle func(update *Update)) bool {
	done := make(chan struct{})
	c.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("WebSocket error: %v", err)
				} else {
					log.Printf("Connection closed: %v", err)
				}
				return
			}
			c.SetReadDeadline(time.Now().Add(opts.ReadTimeout))

			if messageType != websocket.TextMessage {
				log.Printf("Received unexpected message type: %d", messageType)
				continue
			}
			if update := UpdateFromJsonBytes(message); update != nil {
				handle(update)
			} else {
				log.Printf("Failed to parse update: %s", string(message))
			}
		}
	}()

	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return true
		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := c.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Printf("Failed to send ping: %v", err)
			}
		case <-ctx.Done():
			err := c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			if err != nil {
				log.Println("Error sending close message:", err)
			}
			// Wait for close confirmation or timeout
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
