package transport

import (
	"errors"
	"time"
)

// Transport is the duplex byte stream the protocol runs over.
// A read that times out is not a fault: ReadUntil returns what it collected
// so far, which is usually nothing, and a nil error.
type Transport interface {
	SetBaud(baud int) error
	Write(p []byte) (int, error)
	Flush() error
	ReadUntil(delim byte) ([]byte, error)
}

// Driver names accepted in Settings.Driver.
const (
	DriverBugst   = "bugst"
	DriverJacobsa = "jacobsa"
)

// IEC 62056-21 framing is always 7E1 and every session starts at 300 baud.
const (
	InitialBaud = 300
	DataBits    = 7
	StopBits    = 1
)

var (
	ErrUnknownDriver = errors.New("unknown serial driver")
	ErrNotConnected  = errors.New("serial port not connected")
)

type Settings struct {
	Device      string
	Driver      string
	ReadTimeout time.Duration
}

// rawPort is what a driver must provide. Read follows the go.bug.st
// convention: a timed-out read returns 0 and a nil error.
type rawPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetBaud(baud int) error
	Drain() error
	Close() error
}
