package game

import (
	"testing"

	"github.com/freeski070605/reemteam/internal/deck"
)

func TestValidSpread(t *testing.T) {
	tests := []struct {
		name  string
		cards string
		want  bool
	}{
		{"three of a kind", "KsKhKd", true},
		{"four of a kind", "AsAhAdAc", true},
		{"two of a kind", "KsKh", false},
		{"suited run low", "Ah2h3h", true},
		{"suited run over the gap", "6c7cJc", true},
		{"suited run court", "JdQdKd", true},
		{"run wraps past king", "QhKhAh", false},
		{"run mixed suits", "3h4d5h", false},
		{"run with gap", "2s3s5s", false},
		{"unsorted run", "5c3c4c", true},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cards := deck.MustParseCards(tt.cards)
			if got := ValidSpread(cards); got != tt.want {
				t.Errorf("ValidSpread(%s) = %t, want %t", tt.cards, got, tt.want)
			}
		})
	}
}

func TestCanExtendSpread(t *testing.T) {
	tests := []struct {
		name   string
		card   string
		spread string
		want   bool
	}{
		{"fourth king on a set", "Kc", "KsKhKd", true},
		{"queen on a king set", "Qc", "KsKhKd", false},
		{"extend run above", "6h", "3h4h5h", true},
		{"extend run below", "2h", "3h4h5h", true},
		{"jack continues seven", "Jh", "5h6h7h", true},
		{"wrong suit on run", "6d", "3h4h5h", false},
		{"gap on run", "7h", "3h4h5h", false},
		{"ace below two", "Ah", "2h3h4h", true},
		{"nothing below ace", "Kh", "Ah2h3h", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := deck.MustParseCards(tt.card)[0]
			spread := Spread(deck.MustParseCards(tt.spread))
			if got := CanExtendSpread(card, spread); got != tt.want {
				t.Errorf("CanExtendSpread(%s, %s) = %t, want %t", tt.card, tt.spread, got, tt.want)
			}
		})
	}
}

func TestFindSpreadPrefersSets(t *testing.T) {
	hand := deck.MustParseCards("3h4h5hKsKhKd")
	idxs, ok := FindSpread(hand)
	if !ok {
		t.Fatal("expected a spread")
	}
	if len(idxs) != 3 {
		t.Fatalf("expected 3 indices, got %d", len(idxs))
	}
	for _, i := range idxs {
		if hand[i].Rank != deck.King {
			t.Errorf("expected the king set first, got %v", hand[i])
		}
	}
}

func TestFindSpreadRun(t *testing.T) {
	hand := deck.MustParseCards("3h4h5hKsQd")
	idxs, ok := FindSpread(hand)
	if !ok {
		t.Fatal("expected a run")
	}
	cards := []deck.Card{hand[idxs[0]], hand[idxs[1]], hand[idxs[2]]}
	if !ValidSpread(cards) {
		t.Errorf("FindSpread returned an invalid spread %v", cards)
	}
}

func TestFindSpreadNone(t *testing.T) {
	if _, ok := FindSpread(deck.MustParseCards("2h4d6cJsQh")); ok {
		t.Error("expected no spread")
	}
}
