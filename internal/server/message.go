package server

import (
	"encoding/json"
	"time"

	"github.com/freeski070605/reemteam/internal/game"
	"github.com/freeski070605/reemteam/internal/queue"
)

// Message is the wire frame: every client and server message is an
// event name plus a json payload.
type Message struct {
	Event     Event           `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(event Event, payload interface{}) (*Message, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Message{Event: event, Payload: raw, Timestamp: time.Now()}, nil
}

// Client → Server Payloads

type JoinQueuePayload struct {
	Stake    int            `json:"stake"`
	Priority queue.Priority `json:"priority,omitempty"`
}

type JoinTablePayload struct {
	TableID string `json:"tableId"`
}

type JoinSpectatorPayload struct {
	TableID string `json:"tableId"`
}

type PlayerReadyPayload struct {
	TableID string `json:"tableId"`
}

type GameActionPayload struct {
	TableID   string      `json:"tableId"`
	Action    game.Action `json:"action"`
	StateHash string      `json:"stateHash,omitempty"`
}

type LeaveTablePayload struct {
	TableID string `json:"tableId"`
}

type RequestStateSyncPayload struct {
	TableID string `json:"tableId"`
}

type VerifyStatePayload struct {
	TableID string `json:"tableId"`
	Hash    string `json:"hash"`
}

type ReconnectPayload struct {
	TableID string `json:"tableId"`
}

// Server → Client Payloads

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TableSummary struct {
	ID        string   `json:"id"`
	Stake     int      `json:"stake"`
	Preset    bool     `json:"preset"`
	SeatCount int      `json:"seatCount"`
	MaxSeats  int      `json:"maxSeats"`
	Usernames []string `json:"usernames"`
	Status    string   `json:"status"`
}

type TablesUpdatePayload struct {
	Tables []TableSummary `json:"tables"`
}

type QueueStatusPayload struct {
	Stake         int     `json:"stake"`
	Position      int     `json:"position"`
	EstimatedWait float64 `json:"estimatedWaitSeconds"`
}

type StateSyncPayload struct {
	TableID string     `json:"tableId"`
	State   *game.View `json:"state,omitempty"`
	Roster  []string   `json:"roster"`
	Status  string     `json:"status"`
}

type GameUpdatePayload struct {
	TableID string    `json:"tableId"`
	State   game.View `json:"state"`
}

type GameOverPayload struct {
	TableID     string       `json:"tableId"`
	State       game.View    `json:"state"`
	WinType     game.WinType `json:"winType"`
	Winners     []string     `json:"winners"`
	RoundScores []int        `json:"roundScores"`
}

type TurnStartPayload struct {
	TableID  string `json:"tableId"`
	Seat     int    `json:"seat"`
	Username string `json:"username"`
}

type PlayerJoinedPayload struct {
	TableID  string `json:"tableId"`
	Username string `json:"username"`
	Seat     int    `json:"seat"`
	IsHuman  bool   `json:"isHuman"`
}

type PlayerLeftPayload struct {
	TableID  string `json:"tableId"`
	Username string `json:"username"`
	Forfeit  bool   `json:"forfeit,omitempty"`
}

type PlayerReconnectedPayload struct {
	TableID  string `json:"tableId"`
	Username string `json:"username"`
}

type SpectatorModePayload struct {
	TableID          string    `json:"tableId"`
	State            game.View `json:"state"`
	WillJoinNextHand bool      `json:"willJoinNextHand"`
}

type TransitionPayload struct {
	TransitionID string `json:"transitionId"`
	TableID      string `json:"tableId"`
	Username     string `json:"username"`
}

type StateReconciledPayload struct {
	TableID    string    `json:"tableId"`
	State      game.View `json:"state"`
	ServerHash string    `json:"serverHash"`
	ClientHash string    `json:"clientHash"`
}

type TurnValidationErrorPayload struct {
	TableID string `json:"tableId"`
	Reason  string `json:"reason"`
}
