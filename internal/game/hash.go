package game

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/freeski070605/reemteam/internal/deck"
)

// ComputeHash returns the canonical digest of the state. Equal states
// hash equal; any change to cards, turn or phase changes the digest.
// Connection ids and chip snapshots are deliberately excluded so that a
// reconnect does not present as a desync to other clients.
func (s *HandState) ComputeHash() string {
	var b strings.Builder

	fmt.Fprintf(&b, "phase=%s|stake=%d|turn=%d|drawn=%t|", s.Phase, s.Stake, s.Turn, s.HasDrawn)

	for i, seat := range s.Seats {
		fmt.Fprintf(&b, "seat%d=%s,%t,%s,%d,%d|", i, seat.Username, seat.IsHuman, seat.Status, seat.HitPenaltyRounds, seat.HitCount)
	}
	for i, hand := range s.Hands {
		fmt.Fprintf(&b, "hand%d=%s|", i, cardCodes(hand))
	}
	for i, spreads := range s.Spreads {
		fmt.Fprintf(&b, "spreads%d=", i)
		for _, sp := range spreads {
			fmt.Fprintf(&b, "[%s]", cardCodes(sp))
		}
		b.WriteString("|")
	}
	fmt.Fprintf(&b, "stock=%s|discard=%s|", cardCodes(s.Stock), cardCodes(s.Discard))

	if s.Outcome != nil {
		fmt.Fprintf(&b, "outcome=%s,%v,%v,%d|", s.Outcome.WinType, s.Outcome.Winners, s.Outcome.RoundScores, s.Outcome.DroppedSeat)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func cardCodes(cards []deck.Card) string {
	codes := make([]string, len(cards))
	for i, c := range cards {
		codes[i] = c.Code()
	}
	return strings.Join(codes, ",")
}
