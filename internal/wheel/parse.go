package wheel

import (
	"fmt"
	"strconv"
	"strings"
)

var kindAliases = map[string]Kind{
	"straight":    KindStraightUp,
	"straight_up": KindStraightUp,
	"split":       KindSplit,
	"street":      KindStreet,
	"corner":      KindCorner,
	"five":        KindFiveNumber,
	"five_number": KindFiveNumber,
	"line":        KindLine,
	"column":      KindColumn,
	"dozen":       KindDozen,
	"red":         KindRed,
	"black":       KindBlack,
	"even":        KindEven,
	"odd":         KindOdd,
	"high":        KindHigh,
	"low":         KindLow,
}

// ParseBetType parses the compact notation used by the CLI:
//
//	red | black | even | odd | high | low | five
//	straight:00 | split:5,6 | street:1,2,3 | corner:1,2,4,5 | line:1,2,3,4,5,6
//	column:2 | dozen:3
//
// The result is not validated; call IsValid before using it.
func ParseBetType(s string) (BetType, error) {
	name, args, hasArgs := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	kind, ok := kindAliases[name]
	if !ok {
		return BetType{}, fmt.Errorf("unknown bet type %q", name)
	}

	bet := BetType{Kind: kind}
	switch {
	case kind.arity() > 0:
		if !hasArgs {
			return BetType{}, fmt.Errorf("%s bet needs %d numbers", kind, kind.arity())
		}
		for _, field := range strings.Split(args, ",") {
			p, err := ParsePocket(strings.TrimSpace(field))
			if err != nil {
				return BetType{}, err
			}
			bet.Numbers = append(bet.Numbers, p)
		}
	case kind == KindColumn || kind == KindDozen:
		if !hasArgs {
			return BetType{}, fmt.Errorf("%s bet needs a section", kind)
		}
		section, err := strconv.ParseUint(strings.TrimSpace(args), 10, 8)
		if err != nil {
			return BetType{}, fmt.Errorf("invalid %s %q", kind, args)
		}
		bet.Section = uint8(section)
	case hasArgs:
		return BetType{}, fmt.Errorf("%s bet takes no arguments", kind)
	}

	return bet, nil
}

// String renders the bet in ParseBetType notation.
func (b BetType) String() string {
	switch {
	case b.Kind.arity() > 0:
		parts := make([]string, len(b.Numbers))
		for i, n := range b.Numbers {
			parts[i] = n.String()
		}
		return b.Kind.String() + ":" + strings.Join(parts, ",")
	case b.Kind == KindColumn || b.Kind == KindDozen:
		return fmt.Sprintf("%s:%d", b.Kind, b.Section)
	default:
		return b.Kind.String()
	}
}
