package game

import (
	"sort"

	"github.com/freeski070605/reemteam/internal/deck"
)

// ValidSpread reports whether cards form a legal spread: at least three
// cards, all the same rank, or all the same suit and consecutive in the
// closed run order (Ace low, no wrap past King).
func ValidSpread(cards []deck.Card) bool {
	if len(cards) < 3 {
		return false
	}
	return sameRank(cards) || suitedRun(cards)
}

func sameRank(cards []deck.Card) bool {
	for _, c := range cards[1:] {
		if c.Rank != cards[0].Rank {
			return false
		}
	}
	return true
}

func suitedRun(cards []deck.Card) bool {
	for _, c := range cards[1:] {
		if c.Suit != cards[0].Suit {
			return false
		}
	}
	return contiguousOrders(cards)
}

// contiguousOrders reports whether the rank set of cards occupies a
// gap-free window of the run order.
func contiguousOrders(cards []deck.Card) bool {
	orders := make([]int, len(cards))
	for i, c := range cards {
		orders[i] = c.Rank.Order()
	}
	sort.Ints(orders)
	for i := 1; i < len(orders); i++ {
		if orders[i] != orders[i-1]+1 {
			return false
		}
	}
	return true
}

// CanExtendSpread reports whether card legally extends spread. A card
// extends a same-rank spread iff the ranks match; it extends a suited
// run iff the suit matches and adding the card keeps the rank window
// contiguous.
func CanExtendSpread(card deck.Card, spread Spread) bool {
	if len(spread) < 3 {
		return false
	}
	if sameRank(spread) {
		return card.Rank == spread[0].Rank
	}
	if card.Suit != spread[0].Suit {
		return false
	}
	extended := make([]deck.Card, 0, len(spread)+1)
	extended = append(extended, spread...)
	extended = append(extended, card)
	return contiguousOrders(extended)
}

// FindSpread searches a hand for any legal spread, preferring sets over
// runs, in first-enumeration order. Returns the card indices and true
// if one exists. The enumeration order is fixed so bot play is
// reproducible.
func FindSpread(hand []deck.Card) ([]int, bool) {
	// same-rank sets
	byRank := make(map[deck.Rank][]int)
	for i, c := range hand {
		byRank[c.Rank] = append(byRank[c.Rank], i)
	}
	for _, c := range hand {
		if idxs := byRank[c.Rank]; len(idxs) >= 3 {
			return idxs[:3], true
		}
	}

	// suited runs of exactly three; longer runs contain one
	for i := 0; i < len(hand); i++ {
		for j := 0; j < len(hand); j++ {
			for k := 0; k < len(hand); k++ {
				if i == j || j == k || i == k {
					continue
				}
				candidate := []deck.Card{hand[i], hand[j], hand[k]}
				if suitedRun(candidate) {
					return []int{i, j, k}, true
				}
			}
		}
	}
	return nil, false
}
