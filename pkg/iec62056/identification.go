package iec62056

import "fmt"

var baudRates = map[byte]int{
	'A': 600,
	'B': 1200,
	'C': 2400,
	'D': 4800,
	'E': 9600,
	'F': 19200,
}

// ParseIdentification splits the identification reply (the bytes after '/')
// into its fixed-offset fields. The two trailing bytes are the CR LF.
func ParseIdentification(reply []byte) (IdentificationFrame, error) {
	if len(reply) < minIdentificationLength {
		return IdentificationFrame{}, fmt.Errorf("%w: reply %q is %d bytes, need at least %d",
			ErrMalformedIdentification, reply, len(reply), minIdentificationLength)
	}
	return IdentificationFrame{
		Manufacturer: string(reply[0:3]),
		BaudID:       reply[3],
		Model:        string(reply[4 : len(reply)-2]),
	}, nil
}

// BaudForID maps a baud identification character to bits per second.
// Anything unrecognized falls back to 300 baud.
func BaudForID(id byte) int {
	if baud, ok := baudRates[id]; ok {
		return baud
	}
	return DefaultBaud
}

// BaudID is the inverse of BaudForID for the rates the protocol defines.
func BaudID(baud int) (byte, bool) {
	for id, b := range baudRates {
		if b == baud {
			return id, true
		}
	}
	return 0, false
}

// AckOptionSelect builds "ACK 0 Z 0 CR LF": protocol mode C, the baud id to
// switch to and option 0 (data readout).
func AckOptionSelect(baudID byte) []byte {
	return []byte{ACK, '0', baudID, '0', '\r', '\n'}
}
