package wheel

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStraightUpValidity(t *testing.T) {
	t.Parallel()

	for n := 0; n <= 255; n++ {
		bet := StraightUp(Pocket(n))
		if n <= int(MaxOutcome) {
			assert.True(t, bet.IsValid(), "straight up %d should be valid", n)
		} else {
			assert.False(t, bet.IsValid(), "straight up %d should be rejected", n)
		}
	}
}

func TestInsideBetGeometry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		bet   BetType
		valid bool
	}{
		{"split horizontal", Split(5, 6), true},
		{"split horizontal reversed", Split(6, 5), true},
		{"split vertical", Split(5, 8), true},
		{"split across rows", Split(3, 4), false},
		{"split not adjacent", Split(5, 9), false},
		{"split zero double zero", Split(0, 37), true},
		{"split double zero zero", Split(37, 0), true},
		{"split same number", Split(7, 7), false},
		{"split zero three", Split(0, 3), false},
		{"split off the wheel", Split(36, 39), false},
		{"street first row", Street(1, 2, 3), true},
		{"street unordered", Street(36, 34, 35), true},
		{"street not row start", Street(2, 3, 4), false},
		{"street with zero", Street(0, 1, 2), false},
		{"street duplicate", Street(1, 1, 2), false},
		{"corner", Corner(1, 2, 4, 5), true},
		{"corner right side", Corner(5, 6, 8, 9), true},
		{"corner across right edge", Corner(3, 4, 6, 7), false},
		{"corner bottom", Corner(32, 33, 35, 36), true},
		{"corner wrong shape", Corner(1, 2, 3, 4), false},
		{"corner off layout", Corner(34, 35, 37, 38), false},
		{"line", Line(1, 2, 3, 4, 5, 6), true},
		{"line last", Line(31, 32, 33, 34, 35, 36), true},
		{"line misaligned", Line(2, 3, 4, 5, 6, 7), false},
		{"line gap", Line(1, 2, 3, 4, 5, 7), false},
		{"line duplicate", Line(1, 1, 2, 3, 4, 5), false},
		{"column", Column(2), true},
		{"column zero", Column(0), false},
		{"column four", Column(4), false},
		{"dozen", Dozen(3), true},
		{"dozen four", Dozen(4), false},
		{"five number", FiveNumber(), true},
		{"red", Red(), true},
		{"low", Low(), true},
		{"wrong arity", BetType{Kind: KindSplit, Numbers: []Pocket{5}}, false},
		{"stray payload", BetType{Kind: KindRed, Numbers: []Pocket{1}}, false},
		{"unknown kind", BetType{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.bet.IsValid())
		})
	}
}

func TestRedBlackPartition(t *testing.T) {
	t.Parallel()

	red := Red().WinningPockets()
	black := Black().WinningPockets()
	require.Len(t, red, 18)
	require.Len(t, black, 18)

	seen := map[Pocket]bool{}
	for _, p := range append(red, black...) {
		require.False(t, seen[p], "pocket %d is both red and black", p)
		seen[p] = true
	}
	for p := Pocket(1); p <= 36; p++ {
		assert.True(t, seen[p], "pocket %d has no color", p)
	}
	assert.False(t, Red().IsWinner(Zero))
	assert.False(t, Black().IsWinner(DoubleZero))
}

func TestWinningSets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		bet     BetType
		winners []Pocket
	}{
		{"straight up double zero", StraightUp(DoubleZero), []Pocket{37}},
		{"split", Split(5, 6), []Pocket{5, 6}},
		{"street", Street(4, 5, 6), []Pocket{4, 5, 6}},
		{"corner", Corner(1, 2, 4, 5), []Pocket{1, 2, 4, 5}},
		{"five number", FiveNumber(), []Pocket{0, 1, 2, 3, 37}},
		{"line", Line(7, 8, 9, 10, 11, 12), []Pocket{7, 8, 9, 10, 11, 12}},
		{"column one", Column(1), []Pocket{1, 4, 7, 10, 13, 16, 19, 22, 25, 28, 31, 34}},
		{"column three", Column(3), []Pocket{3, 6, 9, 12, 15, 18, 21, 24, 27, 30, 33, 36}},
		{"dozen two", Dozen(2), []Pocket{13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.winners, tt.bet.WinningPockets())
		})
	}

	t.Run("even money bets exclude zeros", func(t *testing.T) {
		for _, bet := range []BetType{Red(), Black(), Even(), Odd(), High(), Low()} {
			assert.Len(t, bet.WinningPockets(), 18, bet.String())
			assert.False(t, bet.IsWinner(Zero), bet.String())
			assert.False(t, bet.IsWinner(DoubleZero), bet.String())
		}
		assert.True(t, Even().IsWinner(36))
		assert.True(t, Odd().IsWinner(1))
		assert.True(t, High().IsWinner(19))
		assert.False(t, High().IsWinner(18))
		assert.True(t, Low().IsWinner(18))
	})
}

func TestPayout(t *testing.T) {
	t.Parallel()

	payout, err := Split(5, 6).Payout(100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1800), payout)

	payout, err = Red().Payout(50)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), payout)

	multipliers := map[Kind]uint64{
		KindStraightUp: 35, KindSplit: 17, KindStreet: 11, KindCorner: 8,
		KindFiveNumber: 6, KindLine: 5, KindColumn: 2, KindDozen: 2,
		KindRed: 1, KindBlack: 1, KindEven: 1, KindOdd: 1, KindHigh: 1, KindLow: 1,
	}
	for kind, want := range multipliers {
		assert.Equal(t, want, BetType{Kind: kind}.Multiplier(), kind.String())
	}

	_, err = StraightUp(1).Payout(math.MaxUint64 / 10)
	assert.ErrorIs(t, err, ErrPayoutOverflow)

	// winnings fit but adding the stake back does not
	_, err = Red().Payout(math.MaxUint64/2 + 1)
	assert.ErrorIs(t, err, ErrPayoutOverflow)
}

func TestPocketFromRandomness(t *testing.T) {
	t.Parallel()

	var zero [32]byte
	assert.Equal(t, Zero, PocketFromRandomness(zero))

	var one [32]byte
	one[31] = 39
	assert.Equal(t, Pocket(1), PocketFromRandomness(one))

	// A single high byte still influences the result.
	var high [32]byte
	high[0] = 1
	assert.NotEqual(t, Zero, PocketFromRandomness(high))

	counts := make([]int, NumPockets)
	var r [32]byte
	for i := 0; i < NumPockets*200; i++ {
		r[30] = byte(i >> 8)
		r[31] = byte(i)
		p := PocketFromRandomness(r)
		require.True(t, p.Valid())
		counts[p]++
	}
	for p, c := range counts {
		assert.Equal(t, 200, c, "pocket %d", p)
	}
}

func TestBetTypeJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Corner(1, 2, 4, 5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"corner","numbers":[1,2,4,5]}`, string(data))

	var decoded BetType
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"dozen","section":2}`), &decoded))
	assert.True(t, decoded.Equal(Dozen(2)))

	require.Error(t, json.Unmarshal([]byte(`{"kind":"roulette"}`), &decoded))
	require.Error(t, json.Unmarshal([]byte(`{"kind":"split","numbers":[1,300]}`), &decoded))
}
