package wheel

import (
	"fmt"
	"math/big"
	"strconv"
)

// Pocket is a single wheel outcome in the range 0..=MaxOutcome.
type Pocket uint8

const (
	// Zero is the single-zero pocket.
	Zero Pocket = 0
	// DoubleZero is the sentinel for the "00" pocket.
	DoubleZero Pocket = 37
	// MaxOutcome is the largest valid pocket.
	MaxOutcome Pocket = DoubleZero
	// NumPockets is the number of distinct outcomes on the wheel.
	NumPockets = int(MaxOutcome) + 1
)

// Color is the felt color of a pocket.
type Color int

const (
	ColorGreen Color = iota
	ColorRed
	ColorBlack
)

// String returns the string representation of a color
func (c Color) String() string {
	switch c {
	case ColorGreen:
		return "green"
	case ColorRed:
		return "red"
	case ColorBlack:
		return "black"
	default:
		return "unknown"
	}
}

var redPockets = [NumPockets]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true,
	14: true, 16: true, 18: true, 19: true, 21: true, 23: true,
	25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

var blackPockets = [NumPockets]bool{
	2: true, 4: true, 6: true, 8: true, 10: true, 11: true,
	13: true, 15: true, 17: true, 20: true, 22: true, 24: true,
	26: true, 28: true, 29: true, 31: true, 33: true, 35: true,
}

// Valid reports whether p is a pocket on the wheel.
func (p Pocket) Valid() bool {
	return p <= MaxOutcome
}

// IsZero reports whether p is one of the green pockets (0 or 00).
func (p Pocket) IsZero() bool {
	return p == Zero || p == DoubleZero
}

// Color returns the pocket color. Pockets off the wheel are reported as green.
func (p Pocket) Color() Color {
	if !p.Valid() {
		return ColorGreen
	}
	switch {
	case redPockets[p]:
		return ColorRed
	case blackPockets[p]:
		return ColorBlack
	default:
		return ColorGreen
	}
}

// String renders the pocket the way it is printed on the felt.
func (p Pocket) String() string {
	if p == DoubleZero {
		return "00"
	}
	return strconv.Itoa(int(p))
}

// ParsePocket parses "0".."36" and "00".
func ParsePocket(s string) (Pocket, error) {
	if s == "00" {
		return DoubleZero, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid pocket %q", s)
	}
	return Pocket(n), nil
}

var numPocketsBig = big.NewInt(int64(NumPockets))

// PocketFromRandomness maps 32 bytes of oracle entropy onto a pocket.
//
// The bytes are read as a 256-bit big-endian integer and reduced modulo the
// number of pockets, so every input byte contributes and the bias is below
// 38/2^256.
func PocketFromRandomness(randomness [32]byte) Pocket {
	n := new(big.Int).SetBytes(randomness[:])
	return Pocket(n.Mod(n, numPocketsBig).Uint64())
}
