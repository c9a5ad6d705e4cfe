package pattern

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// DefaultSubdivisions is sixteenth-note resolution.
const DefaultSubdivisions = 4

// CommonTimeSignatures are the presets offered to users.
var CommonTimeSignatures = []string{
	"4/4", "3/4",
	"5/4", "7/4",
	"5/8", "7/8", "9/8", "11/8", "13/8",
}

// TimeSignature is a parsed "numerator/denominator" meter.
type TimeSignature struct {
	Numerator   int
	Denominator int
}

// ParseTimeSignature parses strings like "7/8". The denominator must be a
// power of two.
func ParseTimeSignature(s string) (TimeSignature, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return TimeSignature{}, fmt.Errorf("invalid time signature %q: missing '/'", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return TimeSignature{}, fmt.Errorf("invalid time signature numerator %q: %w", num, err)
	}
	d, err := strconv.Atoi(strings.TrimSpace(den))
	if err != nil {
		return TimeSignature{}, fmt.Errorf("invalid time signature denominator %q: %w", den, err)
	}
	if n < 1 || n > 255 {
		return TimeSignature{}, fmt.Errorf("invalid time signature %q: numerator out of range", s)
	}
	if d < 1 || d&(d-1) != 0 {
		return TimeSignature{}, fmt.Errorf("invalid time signature %q: denominator must be a power of two", s)
	}
	return TimeSignature{Numerator: n, Denominator: d}, nil
}

func (ts TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", ts.Numerator, ts.Denominator)
}

// StepsPerBar returns round((n/d) * 4 * subdivisions).
func (ts TimeSignature) StepsPerBar(subdivisions int) int {
	return roundHalfUp(float64(ts.Numerator) / float64(ts.Denominator) * 4 * float64(subdivisions))
}

// DenominatorPower returns log2 of the denominator, as stored in MIDI.
func (ts TimeSignature) DenominatorPower() int {
	return bits.TrailingZeros(uint(ts.Denominator))
}

// roundHalfUp rounds x to the nearest integer, halves toward +Inf.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
