package transport

import (
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

// VTIME is expressed in tenths of a second and fits in one byte.
const maxInterCharacterTimeoutMs = 25500

// jacobsaPort is the legacy driver. go-serial has no way to retune an open
// descriptor, so a baud change reopens the device with the same framing.
type jacobsaPort struct {
	options serial.OpenOptions
	conn    io.ReadWriteCloser
}

func openJacobsa(device string, timeout time.Duration) (rawPort, error) {
	options := serial.OpenOptions{
		PortName:              device,
		BaudRate:              InitialBaud,
		DataBits:              DataBits,
		StopBits:              StopBits,
		ParityMode:            serial.PARITY_EVEN,
		InterCharacterTimeout: interCharacterTimeout(timeout),
		MinimumReadSize:       0,
	}

	conn, err := serial.Open(options)
	if err != nil {
		return nil, err
	}
	return &jacobsaPort{options: options, conn: conn}, nil
}

// interCharacterTimeout converts d to milliseconds, rounded up to the
// 100ms resolution termios supports.
func interCharacterTimeout(d time.Duration) uint {
	ms := uint((d + 99*time.Millisecond) / (100 * time.Millisecond) * 100)
	if ms < 100 {
		ms = 100
	}
	if ms > maxInterCharacterTimeoutMs {
		ms = maxInterCharacterTimeoutMs
	}
	return ms
}

// Read reports a VTIME expiry, which the os package surfaces as io.EOF,
// as a plain timeout.
func (j *jacobsaPort) Read(p []byte) (int, error) {
	n, err := j.conn.Read(p)
	if n == 0 && err == io.EOF {
		return 0, nil
	}
	return n, err
}

func (j *jacobsaPort) Write(p []byte) (int, error) { return j.conn.Write(p) }

// Drain is a no-op: the descriptor is blocking, so Write returns after the
// kernel has accepted every byte.
func (j *jacobsaPort) Drain() error { return nil }

func (j *jacobsaPort) Close() error { return j.conn.Close() }

func (j *jacobsaPort) SetBaud(baud int) error {
	if uint(baud) == j.options.BaudRate {
		return nil
	}
	if err := j.conn.Close(); err != nil {
		return err
	}

	options := j.options
	options.BaudRate = uint(baud)
	conn, err := serial.Open(options)
	if err != nil {
		return err
	}
	j.options = options
	j.conn = conn
	return nil
}
