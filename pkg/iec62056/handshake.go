// Package iec62056 implements the sign-on side of the IEC 62056-21
// (formerly IEC 61107) readout protocol: wake-up, sign-on, identification
// and baud rate negotiation.
package iec62056

import (
	"fmt"
	"time"

	"github.com/NotCoffee418/iec62056_exporter/pkg/transport"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type Handshaker struct {
	caps Capabilities
	now  func() time.Time
}

func NewHandshaker(caps Capabilities) *Handshaker {
	return &Handshaker{caps: caps, now: time.Now}
}

func (h *Handshaker) Capabilities() Capabilities {
	return h.caps
}

// Perform runs one handshake attempt. There are no retries here; the caller
// decides what to do with a failure.
func (h *Handshaker) Perform(t transport.Transport) (*Session, error) {
	hs := &handshake{caps: h.caps, t: t, state: StateIdle}

	frame, err := hs.run()
	if err != nil {
		hs.enter(StateFailed)
		return nil, err
	}

	session := &Session{
		ID:             uuid.New(),
		Manufacturer:   frame.Manufacturer,
		BaudID:         frame.BaudID,
		Model:          frame.Model,
		NegotiatedBaud: hs.baud,
		EstablishedAt:  h.now(),
	}
	hs.enter(StateEstablished)
	return session, nil
}

// handshake holds the state of a single attempt.
type handshake struct {
	caps  Capabilities
	t     transport.Transport
	state State
	baud  int
}

func (hs *handshake) enter(next State) {
	log.WithFields(log.Fields{
		"from": hs.state.String(),
		"to":   next.String(),
	}).Debug("Handshake state change")
	hs.state = next
}

func (hs *handshake) fail(err error) error {
	return fmt.Errorf("handshake failed in state %s: %w", hs.state, err)
}

func (hs *handshake) send(b []byte) error {
	if _, err := hs.t.Write(b); err != nil {
		return hs.fail(err)
	}
	if err := hs.t.Flush(); err != nil {
		return hs.fail(err)
	}
	return nil
}

func (hs *handshake) run() (IdentificationFrame, error) {
	// Idle -> WokenUp
	if err := hs.t.SetBaud(DefaultBaud); err != nil {
		return IdentificationFrame{}, hs.fail(err)
	}
	if hs.caps.WakeUp {
		if err := hs.send(WakeUpSequence); err != nil {
			return IdentificationFrame{}, err
		}
	}
	hs.enter(StateWokenUp)

	// WokenUp -> SignedOn
	if err := hs.send(SignOnSequence); err != nil {
		return IdentificationFrame{}, err
	}
	hs.enter(StateSignedOn)

	// SignedOn -> IdentificationReceived
	prefix, err := hs.t.ReadUntil(IdentificationStartByte)
	if err != nil {
		return IdentificationFrame{}, hs.fail(err)
	}
	if len(prefix) == 0 || prefix[len(prefix)-1] != IdentificationStartByte {
		return IdentificationFrame{}, hs.fail(fmt.Errorf("%w: no %q before reply", ErrMalformedIdentification, IdentificationStartByte))
	}
	reply, err := hs.t.ReadUntil('\n')
	if err != nil {
		return IdentificationFrame{}, hs.fail(err)
	}
	frame, err := ParseIdentification(reply)
	if err != nil {
		return IdentificationFrame{}, hs.fail(err)
	}
	hs.enter(StateIdentificationReceived)

	// IdentificationReceived -> BaudSwitched
	hs.baud = DefaultBaud
	if hs.caps.BaudSwitch {
		hs.baud = BaudForID(frame.BaudID)
		if hs.caps.AckOptionSelect {
			ackID := frame.BaudID
			if hs.baud == DefaultBaud {
				ackID = '0'
			}
			if err := hs.send(AckOptionSelect(ackID)); err != nil {
				return IdentificationFrame{}, err
			}
		}
		if err := hs.t.SetBaud(hs.baud); err != nil {
			return IdentificationFrame{}, hs.fail(err)
		}
	}
	hs.enter(StateBaudSwitched)

	return frame, nil
}
