package server

// Event represents a WebSocket event name with type safety
type Event string

// WebSocket event constants
// These are used for client-server communication protocol
const (
	// Client to server events
	EventJoinQueue        Event = "join_queue"
	EventLeaveQueue       Event = "leave_queue"
	EventJoinTable        Event = "join_table"
	EventJoinSpectator    Event = "join_spectator"
	EventPlayerReady      Event = "player_ready"
	EventGameAction       Event = "game_action"
	EventLeaveTable       Event = "leave_table"
	EventRequestStateSync Event = "request_state_sync"
	EventVerifyState      Event = "verify_state"
	EventReconnectPlayer  Event = "reconnect_player"
	EventPong             Event = "pong"

	// Server to client events
	EventTablesUpdate        Event = "tables_update"
	EventQueueStatus         Event = "queue_status"
	EventStateSync           Event = "state_sync"
	EventGameUpdate          Event = "game_update"
	EventGameOver            Event = "game_over"
	EventTurnStart           Event = "turn_start"
	EventPlayerJoined        Event = "player_joined"
	EventPlayerLeft          Event = "player_left"
	EventPlayerReconnected   Event = "player_reconnected"
	EventSpectatorMode       Event = "spectator_mode_active"
	EventTransitionInitiated Event = "transition_initiated"
	EventTransitionCompleted Event = "transition_completed"
	EventStateReconciled     Event = "state_reconciled"
	EventError               Event = "error"
	EventPing                Event = "ping"
	EventTurnValidationError Event = "turn_validation_error"
)

// String returns the string representation of the event
func (e Event) String() string {
	return string(e)
}
