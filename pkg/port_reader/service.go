package port_reader

import (
	"bytes"
	"fmt"

	"github.com/NotCoffee418/iec62056_exporter/pkg/transport"
	log "github.com/sirupsen/logrus"
)

// Initialize a new FrameReader on an already handshaken transport.
func NewFrameReader(t transport.Transport) *FrameReader {
	return &FrameReader{transport: t}
}

// NextLine returns the next newline terminated line exactly as received.
// An empty read means the transmission burst is over.
func (f *FrameReader) NextLine() ([]byte, error) {
	line, err := f.transport.ReadUntil('\n')
	if err != nil {
		return nil, fmt.Errorf("read data line: %w", err)
	}
	if len(line) == 0 {
		return nil, ErrEndOfSession
	}

	if bytes.IndexByte(line, stx) >= 0 {
		log.Debug("Start of data block")
	}
	if bytes.IndexByte(line, etx) >= 0 {
		log.Debug("End of data block")
	}
	return line, nil
}
