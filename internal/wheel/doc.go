// Package wheel implements the bet taxonomy of an American roulette wheel.
//
// The wheel has 38 pockets: 0 through 36 plus "00", which is represented by
// the sentinel pocket 37 (DoubleZero). Everything in this package is pure:
// no state, no clock and no I/O.
//
// # Bet Types
//
// A BetType is a closed tagged union. Kind selects the variant and the
// payload fields are only meaningful for the kinds that carry them:
//
//	wheel.StraightUp(17)          // Numbers: [17]
//	wheel.Split(5, 6)             // Numbers: [5 6]
//	wheel.Street(1, 2, 3)         // Numbers: [1 2 3]
//	wheel.Corner(1, 2, 4, 5)      // Numbers: [1 2 4 5]
//	wheel.Line(1, 2, 3, 4, 5, 6)  // Numbers: [1 2 3 4 5 6]
//	wheel.Column(2)               // Section: 2
//	wheel.Dozen(3)                // Section: 3
//	wheel.Red()                   // no payload
//
// Shape legality is checked with IsValid at placement time, and IsWinner
// evaluates a bet against a resolved pocket at claim time.
//
// # Table Layout
//
// Inside bets are validated against the standard layout of twelve rows of
// three numbers. The row of n is (n-1)/3 and its column position is
// (n-1)%3, so 1, 4, 7 ... start a row and 3, 6, 9 ... end one.
package wheel
