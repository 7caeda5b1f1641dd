package deck

import rand "math/rand/v2"

// Size is the number of cards in a Tonk deck (full deck minus 8s, 9s
// and 10s).
const Size = 40

// ranks in deck order; 8/9/10 never exist in this game
var ranks = []Rank{Ace, Two, Three, Four, Five, Six, Seven, Jack, Queen, King}

// New returns the 40 cards of a fresh deck in canonical order.
func New() []Card {
	cards := make([]Card, 0, Size)
	for suit := Spades; suit <= Clubs; suit++ {
		for _, rank := range ranks {
			cards = append(cards, NewCard(rank, suit))
		}
	}
	return cards
}

// Shuffled returns a freshly shuffled deck using the provided RNG. The
// RNG is injected so deals are reproducible under a fixed seed.
func Shuffled(rng *rand.Rand) []Card {
	cards := New()
	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	return cards
}

// Points sums the scoring value of a set of cards.
func Points(cards []Card) int {
	total := 0
	for _, c := range cards {
		total += c.Points()
	}
	return total
}
