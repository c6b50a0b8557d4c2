package session

import (
	"time"

	"github.com/NotCoffee418/iec62056_exporter/pkg/iec62056"
)

// Sink receives every decoded reading. Observing the same code again
// replaces its previous value; unknown codes are ignored.
type Sink interface {
	Observe(code, content string)
}

// IdentitySink is implemented by sinks that publish the meter identity.
type IdentitySink interface {
	ObserveIdentity(id Identity)
}

// HandshakeObserver is implemented by sinks that track handshake outcomes.
// session is nil when err is not.
type HandshakeObserver interface {
	ObserveHandshake(session *iec62056.Session, err error)
}

// SessionEndObserver is implemented by sinks that drop per-session state
// when the meter session ends.
type SessionEndObserver interface {
	ObserveSessionEnd()
}

// Identity of the meter in the current session. Manufacturer and model come
// from the identification reply, serial and firmware from the data block.
type Identity struct {
	Manufacturer    string `json:"manufacturer"`
	Model           string `json:"model"`
	SerialNumber    string `json:"serial_number"`
	FirmwareVersion string `json:"firmware_version"`
}

// Complete reports whether the data block has provided serial and firmware.
func (i Identity) Complete() bool {
	return i.SerialNumber != "" && i.FirmwareVersion != ""
}

// RetryPolicy bounds how often a failing handshake is retried. Delays grow
// exponentially from BaseDelay up to MaxDelay. MaxAttempts of zero retries
// forever.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 10,
	BaseDelay:   2 * time.Second,
	MaxDelay:    60 * time.Second,
}

// Delay before the attempt following the given failed one (1-based).
func (p RetryPolicy) Delay(failed int) time.Duration {
	if failed < 1 {
		failed = 1
	}
	if failed > 31 {
		return p.MaxDelay
	}
	delay := time.Duration(1<<(failed-1)) * p.BaseDelay
	if delay > p.MaxDelay || delay < 0 {
		delay = p.MaxDelay
	}
	return delay
}
