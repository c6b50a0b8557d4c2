package iec62056

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrMalformedIdentification = errors.New("malformed identification")

// Protocol bytes.
var (
	SignOnSequence = []byte{0x2F, 0x3F, 0x21, 0x0D, 0x0A} // "/?!\r\n"
	WakeUpSequence = make([]byte, 40)
)

const (
	ACK                     byte = 0x06
	IdentificationStartByte byte = '/'
	DefaultBaud                  = 300
	minIdentificationLength      = 6
)

// Capabilities selects the handshake variant a meter implements.
type Capabilities struct {
	// Send a run of NUL bytes before signing on.
	WakeUp bool
	// Switch to the baud rate advertised in the identification reply.
	BaudSwitch bool
	// Send the acknowledgement/option select message before switching.
	AckOptionSelect bool
}

type State int

const (
	StateIdle State = iota
	StateWokenUp
	StateSignedOn
	StateIdentificationReceived
	StateBaudSwitched
	StateEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWokenUp:
		return "woken_up"
	case StateSignedOn:
		return "signed_on"
	case StateIdentificationReceived:
		return "identification_received"
	case StateBaudSwitched:
		return "baud_switched"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type IdentificationFrame struct {
	Manufacturer string
	BaudID       byte
	Model        string
}

// Session is what a successful handshake negotiated. It is replaced, never
// modified, when the meter is signed on again.
type Session struct {
	ID             uuid.UUID
	Manufacturer   string
	BaudID         byte
	Model          string
	NegotiatedBaud int
	EstablishedAt  time.Time
}
