package game

// EventType tags a domain event emitted by Step.
type EventType string

const (
	EventPlayerDied  EventType = "player_died"
	EventMassDecayed EventType = "mass_decayed"
	EventVirusFed    EventType = "virus_fed"
	EventVirusShot   EventType = "virus_shot"
	EventVirusPopped EventType = "virus_popped"
)

// Event records something the room host cares about: a death to settle, mass
// burned by decay, virus activity to broadcast.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Killer    string    `json:"killer,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	NodeID    NodeID    `json:"node_id,omitempty"`
}

func (w *World) emit(e Event) {
	w.events = append(w.events, e)
}
