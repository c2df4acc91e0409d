package wheel

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"
	"slices"
)

// ErrPayoutOverflow is returned when a payout does not fit in 64 bits.
var ErrPayoutOverflow = errors.New("wheel: payout overflows uint64")

// Kind identifies a BetType variant.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindStraightUp
	KindSplit
	KindStreet
	KindCorner
	KindFiveNumber
	KindLine
	KindColumn
	KindDozen
	KindRed
	KindBlack
	KindEven
	KindOdd
	KindHigh
	KindLow
)

var kindNames = map[Kind]string{
	KindStraightUp: "straight_up",
	KindSplit:      "split",
	KindStreet:     "street",
	KindCorner:     "corner",
	KindFiveNumber: "five_number",
	KindLine:       "line",
	KindColumn:     "column",
	KindDozen:      "dozen",
	KindRed:        "red",
	KindBlack:      "black",
	KindEven:       "even",
	KindOdd:        "odd",
	KindHigh:       "high",
	KindLow:        "low",
}

// Kinds lists every bet kind in declaration order.
var Kinds = []Kind{
	KindStraightUp, KindSplit, KindStreet, KindCorner, KindFiveNumber, KindLine,
	KindColumn, KindDozen, KindRed, KindBlack, KindEven, KindOdd, KindHigh, KindLow,
}

// String returns the string representation of a bet kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown bet kind %d", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind looks up a kind by its snake_case name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown bet kind %q", name)
}

// arity is the number of pockets an inside bet names, zero for the rest.
func (k Kind) arity() int {
	switch k {
	case KindStraightUp:
		return 1
	case KindSplit:
		return 2
	case KindStreet:
		return 3
	case KindCorner:
		return 4
	case KindLine:
		return 6
	default:
		return 0
	}
}

// BetType is one wager shape. Numbers carries the pockets of inside bets
// and Section the 1-based column or dozen.
type BetType struct {
	Kind    Kind
	Numbers []Pocket
	Section uint8
}

// StraightUp bets on a single pocket.
func StraightUp(n Pocket) BetType { return BetType{Kind: KindStraightUp, Numbers: []Pocket{n}} }

// Split bets on two adjacent pockets.
func Split(a, b Pocket) BetType { return BetType{Kind: KindSplit, Numbers: []Pocket{a, b}} }

// Street bets on one row of three.
func Street(a, b, c Pocket) BetType { return BetType{Kind: KindStreet, Numbers: []Pocket{a, b, c}} }

// Corner bets on four pockets meeting at a corner.
func Corner(a, b, c, d Pocket) BetType {
	return BetType{Kind: KindCorner, Numbers: []Pocket{a, b, c, d}}
}

// FiveNumber bets on 0, 00, 1, 2 and 3.
func FiveNumber() BetType { return BetType{Kind: KindFiveNumber} }

// Line bets on two adjacent rows.
func Line(a, b, c, d, e, f Pocket) BetType {
	return BetType{Kind: KindLine, Numbers: []Pocket{a, b, c, d, e, f}}
}

// Column bets on column 1, 2 or 3.
func Column(column uint8) BetType { return BetType{Kind: KindColumn, Section: column} }

// Dozen bets on 1-12, 13-24 or 25-36.
func Dozen(dozen uint8) BetType { return BetType{Kind: KindDozen, Section: dozen} }

func Red() BetType   { return BetType{Kind: KindRed} }
func Black() BetType { return BetType{Kind: KindBlack} }
func Even() BetType  { return BetType{Kind: KindEven} }
func Odd() BetType   { return BetType{Kind: KindOdd} }
func High() BetType  { return BetType{Kind: KindHigh} }
func Low() BetType   { return BetType{Kind: KindLow} }

// IsValid reports whether the bet shape is legal on the layout.
func (b BetType) IsValid() bool {
	if len(b.Numbers) != b.Kind.arity() {
		return false
	}
	if b.Kind != KindColumn && b.Kind != KindDozen && b.Section != 0 {
		return false
	}

	switch b.Kind {
	case KindStraightUp:
		return b.Numbers[0] <= MaxOutcome
	case KindSplit:
		return isValidSplit(b.Numbers[0], b.Numbers[1])
	case KindStreet:
		return isValidStreet(b.Numbers)
	case KindCorner:
		return isValidCorner(b.Numbers)
	case KindLine:
		return isValidLine(b.Numbers)
	case KindColumn, KindDozen:
		return b.Section >= 1 && b.Section <= 3
	case KindFiveNumber, KindRed, KindBlack, KindEven, KindOdd, KindHigh, KindLow:
		return true
	default:
		return false
	}
}

// IsWinner reports whether the bet wins when the wheel lands on outcome.
func (b BetType) IsWinner(outcome Pocket) bool {
	switch b.Kind {
	case KindStraightUp:
		return len(b.Numbers) == 1 && b.Numbers[0] == outcome
	case KindSplit, KindStreet, KindCorner, KindLine:
		return slices.Contains(b.Numbers, outcome)
	case KindFiveNumber:
		return outcome <= 3 || outcome == DoubleZero
	case KindColumn:
		if !onLayout(outcome) {
			return false
		}
		return uint8((outcome-1)%3)+1 == b.Section
	case KindDozen:
		if !onLayout(outcome) {
			return false
		}
		return uint8((outcome-1)/12)+1 == b.Section
	case KindRed:
		return outcome.Color() == ColorRed
	case KindBlack:
		return outcome.Color() == ColorBlack
	case KindEven:
		return onLayout(outcome) && outcome%2 == 0
	case KindOdd:
		return onLayout(outcome) && outcome%2 == 1
	case KindHigh:
		return outcome >= 19 && outcome <= 36
	case KindLow:
		return outcome >= 1 && outcome <= 18
	default:
		return false
	}
}

// Multiplier returns the winnings paid per unit staked, excluding the stake.
func (b BetType) Multiplier() uint64 {
	switch b.Kind {
	case KindStraightUp:
		return 35
	case KindSplit:
		return 17
	case KindStreet:
		return 11
	case KindCorner:
		return 8
	case KindFiveNumber:
		return 6
	case KindLine:
		return 5
	case KindColumn, KindDozen:
		return 2
	case KindRed, KindBlack, KindEven, KindOdd, KindHigh, KindLow:
		return 1
	default:
		return 0
	}
}

// Payout returns stake*multiplier + stake, the amount owed to a winner.
func (b BetType) Payout(stake uint64) (uint64, error) {
	hi, winnings := bits.Mul64(stake, b.Multiplier())
	if hi != 0 {
		return 0, ErrPayoutOverflow
	}
	total, carry := bits.Add64(winnings, stake, 0)
	if carry != 0 {
		return 0, ErrPayoutOverflow
	}
	return total, nil
}

// WinningPockets enumerates every outcome the bet wins on.
func (b BetType) WinningPockets() []Pocket {
	var pockets []Pocket
	for p := Pocket(0); p <= MaxOutcome; p++ {
		if b.IsWinner(p) {
			pockets = append(pockets, p)
		}
	}
	return pockets
}

// Equal reports whether two bet types are the same variant with the same payload.
func (b BetType) Equal(other BetType) bool {
	return b.Kind == other.Kind && b.Section == other.Section && slices.Equal(b.Numbers, other.Numbers)
}

type betTypeJSON struct {
	Kind    Kind  `json:"kind"`
	Numbers []int `json:"numbers,omitempty"`
	Section uint8 `json:"section,omitempty"`
}

// MarshalJSON encodes pockets as numbers rather than a byte string.
func (b BetType) MarshalJSON() ([]byte, error) {
	out := betTypeJSON{Kind: b.Kind, Section: b.Section}
	for _, n := range b.Numbers {
		out.Numbers = append(out.Numbers, int(n))
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *BetType) UnmarshalJSON(data []byte) error {
	var in betTypeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	numbers := make([]Pocket, 0, len(in.Numbers))
	for _, n := range in.Numbers {
		if n < 0 || n > 255 {
			return fmt.Errorf("pocket %d out of range", n)
		}
		numbers = append(numbers, Pocket(n))
	}
	if len(numbers) == 0 {
		numbers = nil
	}
	*b = BetType{Kind: in.Kind, Numbers: numbers, Section: in.Section}
	return nil
}

// onLayout reports whether p is one of the numbered pockets 1-36.
func onLayout(p Pocket) bool {
	return p >= 1 && p <= 36
}

func row(n Pocket) Pocket       { return (n - 1) / 3 }
func isRowStart(n Pocket) bool  { return (n-1)%3 == 0 }
func isRightEdge(n Pocket) bool { return (n-1)%3 == 2 }

func isValidSplit(a, b Pocket) bool {
	if a == b {
		return false
	}
	// 0 and 00 share an edge on the American layout
	if (a == Zero && b == DoubleZero) || (a == DoubleZero && b == Zero) {
		return true
	}
	if !onLayout(a) || !onLayout(b) {
		return false
	}

	lo, hi := min(a, b), max(a, b)
	switch hi - lo {
	case 3:
		return true
	case 1:
		return row(lo) == row(hi)
	default:
		return false
	}
}

// sortedLayout returns a sorted copy of numbers if they are distinct and all on the layout.
func sortedLayout(numbers []Pocket) ([]Pocket, bool) {
	sorted := slices.Clone(numbers)
	slices.Sort(sorted)
	for i, n := range sorted {
		if !onLayout(n) {
			return nil, false
		}
		if i > 0 && sorted[i-1] == n {
			return nil, false
		}
	}
	return sorted, true
}

func consecutive(sorted []Pocket) bool {
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+1 {
			return false
		}
	}
	return true
}

func isValidStreet(numbers []Pocket) bool {
	sorted, ok := sortedLayout(numbers)
	if !ok || !consecutive(sorted) {
		return false
	}
	return isRowStart(sorted[0]) && row(sorted[0]) == row(sorted[2])
}

func isValidCorner(numbers []Pocket) bool {
	sorted, ok := sortedLayout(numbers)
	if !ok {
		return false
	}
	n := sorted[0]
	if sorted[1] != n+1 || sorted[2] != n+3 || sorted[3] != n+4 {
		return false
	}
	return !isRightEdge(n)
}

func isValidLine(numbers []Pocket) bool {
	sorted, ok := sortedLayout(numbers)
	if !ok || !consecutive(sorted) {
		return false
	}
	return isRowStart(sorted[0]) && row(sorted[5]) == row(sorted[0])+1
}
