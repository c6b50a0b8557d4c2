package transport

import (
	"bytes"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const readChunkSize = 64

// Port is a Transport over a real serial device.
type Port struct {
	device  string
	raw     rawPort
	pending []byte
}

// Open the serial device at the IEC 62056-21 initial settings (300 baud, 7E1).
func Open(settings Settings) (*Port, error) {
	if settings.ReadTimeout <= 0 {
		settings.ReadTimeout = 10 * time.Second
	}

	var (
		raw rawPort
		err error
	)
	switch settings.Driver {
	case "", DriverBugst:
		raw, err = openBugst(settings.Device, settings.ReadTimeout)
	case DriverJacobsa:
		raw, err = openJacobsa(settings.Device, settings.ReadTimeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, settings.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	log.WithFields(log.Fields{
		"device": settings.Device,
		"driver": settings.Driver,
	}).Info("Connected to meter serial port")
	return newPort(settings.Device, raw), nil
}

func newPort(device string, raw rawPort) *Port {
	return &Port{device: device, raw: raw}
}

func (p *Port) SetBaud(baud int) error {
	if p.raw == nil {
		return ErrNotConnected
	}
	if err := p.raw.SetBaud(baud); err != nil {
		return fmt.Errorf("set baud %d: %w", baud, err)
	}
	log.WithField("baud", baud).Debug("Serial baud rate changed")
	return nil
}

func (p *Port) Write(b []byte) (int, error) {
	if p.raw == nil {
		return 0, ErrNotConnected
	}
	return p.raw.Write(b)
}

// Flush blocks until everything written has left the UART.
func (p *Port) Flush() error {
	if p.raw == nil {
		return ErrNotConnected
	}
	return p.raw.Drain()
}

// ReadUntil returns the bytes up to and including delim. If the read timeout
// elapses first, the partial data collected so far is returned with a nil
// error.
func (p *Port) ReadUntil(delim byte) ([]byte, error) {
	if p.raw == nil {
		return nil, ErrNotConnected
	}

	buf := make([]byte, readChunkSize)
	for {
		if i := bytes.IndexByte(p.pending, delim); i >= 0 {
			line := append([]byte(nil), p.pending[:i+1]...)
			p.pending = p.pending[i+1:]
			return line, nil
		}

		n, err := p.raw.Read(buf)
		if n > 0 {
			p.pending = append(p.pending, buf[:n]...)
			continue
		}
		if err != nil {
			return nil, err
		}

		// Timed out.
		line := p.pending
		p.pending = nil
		return line, nil
	}
}

func (p *Port) Close() error {
	if p.raw == nil {
		return nil
	}
	err := p.raw.Close()
	p.raw = nil
	log.WithField("device", p.device).Info("Disconnected from meter serial port")
	return err
}
