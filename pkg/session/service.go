// Package session keeps a meter signed on and feeds its readings to sinks.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NotCoffee418/iec62056_exporter/pkg/iec62056"
	"github.com/NotCoffee418/iec62056_exporter/pkg/interpreter"
	"github.com/NotCoffee418/iec62056_exporter/pkg/port_reader"
	"github.com/NotCoffee418/iec62056_exporter/pkg/transport"
	log "github.com/sirupsen/logrus"
)

// Driver owns the transport for the lifetime of the process. It is not safe
// for concurrent use.
type Driver struct {
	transport  transport.Transport
	handshaker *iec62056.Handshaker
	frames     *port_reader.FrameReader
	retry      RetryPolicy
	sinks      []Sink

	session  *iec62056.Session
	identity Identity
}

func NewDriver(t transport.Transport, h *iec62056.Handshaker, retry RetryPolicy, sinks ...Sink) *Driver {
	return &Driver{
		transport:  t,
		handshaker: h,
		frames:     port_reader.NewFrameReader(t),
		retry:      retry,
		sinks:      sinks,
	}
}

// Run signs on and reads the meter until ctx is cancelled or the handshake
// retry budget runs out. It never returns nil.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.establish(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			d.endSession()
			return err
		}

		line, err := d.frames.NextLine()
		switch {
		case errors.Is(err, port_reader.ErrEndOfSession):
			d.endSession()
			if err := d.establish(ctx); err != nil {
				return err
			}
		case err != nil:
			log.WithError(err).Warn("Transport fault, signing on again")
			d.endSession()
			if err := d.establish(ctx); err != nil {
				return err
			}
		default:
			d.handleLine(line)
		}
	}
}

// establish runs the handshake, retrying with backoff until it succeeds,
// ctx is cancelled or the retry policy gives up.
func (d *Driver) establish(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		s, err := d.handshaker.Perform(d.transport)
		d.notifyHandshake(s, err)
		if err == nil {
			d.startSession(s)
			return nil
		}

		if d.retry.MaxAttempts > 0 && attempt >= d.retry.MaxAttempts {
			log.Printf("Max handshake attempts (%d) reached. Giving up.", d.retry.MaxAttempts)
			return fmt.Errorf("giving up after %d handshake attempts: %w", attempt, err)
		}

		delay := d.retry.Delay(attempt)
		log.WithError(err).Warnf("Handshake failed, retrying in %v (attempt %d)", delay, attempt+1)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (d *Driver) startSession(s *iec62056.Session) {
	d.session = s
	d.identity = Identity{Manufacturer: s.Manufacturer, Model: s.Model}
	log.WithFields(log.Fields{
		"session":      s.ID.String(),
		"manufacturer": s.Manufacturer,
		"model":        s.Model,
		"baud":         s.NegotiatedBaud,
	}).Info("Meter session established")
}

func (d *Driver) endSession() {
	if d.session == nil {
		return
	}
	log.WithFields(log.Fields{
		"session":  d.session.ID.String(),
		"duration": time.Since(d.session.EstablishedAt).Round(time.Millisecond),
	}).Info("Meter session ended")
	d.session = nil
	d.identity = Identity{}

	for _, sink := range d.sinks {
		if eo, ok := sink.(SessionEndObserver); ok {
			eo.ObserveSessionEnd()
		}
	}
}

func (d *Driver) handleLine(line []byte) {
	for _, raw := range interpreter.Decode(line) {
		reading, err := interpreter.Extract(raw)
		if err != nil {
			log.WithFields(log.Fields{
				"code":    raw.Code,
				"content": raw.Content,
			}).Warn("Skipping reading without a numeric value")
			continue
		}

		changed := d.trackIdentity(reading)
		for _, sink := range d.sinks {
			sink.Observe(reading.Code, reading.Content)
		}
		if changed && d.identity.Complete() {
			d.notifyIdentity()
		}
	}
}

func (d *Driver) trackIdentity(r interpreter.Reading) bool {
	switch r.Code {
	case interpreter.CodeSerialNumber:
		if d.identity.SerialNumber == r.Content {
			return false
		}
		d.identity.SerialNumber = r.Content
		return true
	case interpreter.CodeFirmwareVersion:
		if d.identity.FirmwareVersion == r.Content {
			return false
		}
		d.identity.FirmwareVersion = r.Content
		return true
	}
	return false
}

func (d *Driver) notifyIdentity() {
	for _, sink := range d.sinks {
		if is, ok := sink.(IdentitySink); ok {
			is.ObserveIdentity(d.identity)
		}
	}
}

func (d *Driver) notifyHandshake(s *iec62056.Session, err error) {
	for _, sink := range d.sinks {
		if ho, ok := sink.(HandshakeObserver); ok {
			ho.ObserveHandshake(s, err)
		}
	}
}
