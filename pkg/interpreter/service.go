// Package interpreter turns IEC 62056-21 data lines into OBIS readings.
package interpreter

import (
	"fmt"
	"regexp"
)

var (
	// An OBIS code (1 to 3 segments, optional *NN) directly followed by
	// parenthesized content. Anything else on the line is ignored.
	readingPattern = regexp.MustCompile(`(\w{1,3}(?:\.\w{1,3}){0,2}(?:\*\d{1,2})?)\(([a-zA-Z0-9:>.,\s*&-]*)\)`)

	fractionalPattern = regexp.MustCompile(`\d*\.\d+|\d+\.\d*`)
	integralPattern   = regexp.MustCompile(`\d+`)
)

// Decode returns every reading on the line from left to right. A line
// without any reading yields nil.
func Decode(line []byte) []Reading {
	matches := readingPattern.FindAllSubmatch(line, -1)
	if len(matches) == 0 {
		return nil
	}

	readings := make([]Reading, 0, len(matches))
	for _, m := range matches {
		readings = append(readings, Reading{
			Code:    string(m[1]),
			Content: string(m[2]),
		})
	}
	return readings
}

// IsNumeric reports whether code carries a numeric value.
func IsNumeric(code string) bool {
	_, ok := numericCodes[code]
	return ok
}

// Extract reduces the content of numeric codes to the number it starts
// with, e.g. "001234.567*kWh" becomes "001234.567". Other readings are
// returned unchanged.
func Extract(r Reading) (Reading, error) {
	kind, ok := numericCodes[r.Code]
	if !ok {
		return r, nil
	}

	pattern := integralPattern
	if kind == fractional {
		pattern = fractionalPattern
	}

	value := pattern.FindString(r.Content)
	if value == "" {
		return r, fmt.Errorf("%w: %s(%s)", ErrNumericExtraction, r.Code, r.Content)
	}
	return Reading{Code: r.Code, Content: value}, nil
}
