// Package telemetry defines the events feedhunterd pushes to WebSocket
// clients. Every event carries a type, a timestamp and the component that
// produced it.
package telemetry

import "time"

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventHeartbeat EventType = "heartbeat"
	EventState     EventType = "state"
	EventProgress  EventType = "progress"
	EventAttempt   EventType = "attempt"
	EventLock      EventType = "lock"
	EventRotor     EventType = "rotor"
	EventLog       EventType = "log"
)

// Event is the envelope shared by every event type.
type Event struct {
	Type      EventType `json:"type"`
	TS        string    `json:"ts"`
	Component string    `json:"component,omitempty"`
}

// NowTS returns the current UTC time in the format used by all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// NewEvent stamps an envelope.
func NewEvent(t EventType, component string) Event {
	return Event{Type: t, TS: NowTS(), Component: component}
}

// Heartbeat lets clients detect connectivity and see uptime.
type Heartbeat struct {
	Event
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Device        string `json:"device"`
}

// StateTransition is emitted when the runner moves between states
// (IDLE, SCANNING, TUNING, ROTATING).
type StateTransition struct {
	Event
	From string `json:"from"`
	To   string `json:"to"`
}

// Progress reports how much of a scan range is covered.
type Progress struct {
	Event
	Stage     string  `json:"stage"`
	Percent   float64 `json:"percent"`
	OffsetKHz uint32  `json:"offset_khz"`
	TotalKHz  uint32  `json:"total_khz"`
}

// Attempt describes one tune; Lock uses the same shape for attempts that
// locked.
type Attempt struct {
	Event
	FrequencyKHz uint32 `json:"frequency_khz"`
	Polarization string `json:"polarization"`
	IFKHz        uint32 `json:"if_khz"`
	HighBand     bool   `json:"high_band"`
	Signal       bool   `json:"signal"`
	Carrier      bool   `json:"carrier"`
	Viterbi      bool   `json:"viterbi"`
	Sync         bool   `json:"sync"`
	Locked       bool   `json:"locked"`
}

// Rotor reports a DiSEqC frame going out.
type Rotor struct {
	Event
	Command string `json:"command"`
	Frame   string `json:"frame"`
	WaitS   int    `json:"wait_s,omitempty"`
}

// LogLine carries a human-readable message at a severity level.
type LogLine struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}

// NewLog builds a LogLine.
func NewLog(component, level, message string) LogLine {
	return LogLine{Event: NewEvent(EventLog, component), Level: level, Message: message}
}
