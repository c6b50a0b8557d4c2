package transport

import (
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

type bugstPort struct {
	port serial.Port
	mode *serial.Mode
}

func openBugst(device string, timeout time.Duration) (rawPort, error) {
	mode := &serial.Mode{
		BaudRate: InitialBaud,
		DataBits: DataBits,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, err
	}
	// Anything the meter sent before we were listening is stale.
	discardStale(device, port)

	return &bugstPort{port: port, mode: mode}, nil
}

func (b *bugstPort) Read(p []byte) (int, error)  { return b.port.Read(p) }
func (b *bugstPort) Write(p []byte) (int, error) { return b.port.Write(p) }
func (b *bugstPort) Drain() error                { return b.port.Drain() }
func (b *bugstPort) Close() error                { return b.port.Close() }

func (b *bugstPort) SetBaud(baud int) error {
	b.mode.BaudRate = baud
	return b.port.SetMode(b.mode)
}

type inputResetter interface {
	ResetInputBuffer() error
}

func discardStale(device string, port inputResetter) {
	if err := port.ResetInputBuffer(); err != nil {
		log.WithError(err).WithField("device", device).Debug("Could not discard stale serial input")
	}
}
