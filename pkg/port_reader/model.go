package port_reader

import (
	"errors"

	"github.com/NotCoffee418/iec62056_exporter/pkg/transport"
)

// ErrEndOfSession is returned by NextLine when the meter has gone quiet.
// Like io.EOF it marks an expected condition, not a failure.
var ErrEndOfSession = errors.New("end of session")

// Framing bytes the meter puts around a data block.
const (
	stx = 0x02
	etx = 0x03
)

type FrameReader struct {
	transport transport.Transport
}
