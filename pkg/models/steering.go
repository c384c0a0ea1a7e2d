package models

import "time"

// WhisperPriority is the urgency attached to a steering message. The channel
// itself treats all priorities identically; the convention for abort (stop
// work, commit WIP, exit) is enforced by the agent reading it.
type WhisperPriority string

const (
	WhisperNormal WhisperPriority = "normal"
	WhisperUrgent WhisperPriority = "urgent"
	WhisperAbort  WhisperPriority = "abort"
)

// ValidWhisperPriority reports whether p is a known whisper priority.
func ValidWhisperPriority(p WhisperPriority) bool {
	return p == WhisperNormal || p == WhisperUrgent || p == WhisperAbort
}

// SteeringMessage is a single operator-to-process instruction ("whisper").
// Messages are append-only: never mutated, never deleted. Delivery is
// tracked externally via the per-process cursor in ProcessStatusRecord.
type SteeringMessage struct {
	Instruction string          `json:"instruction"`
	Priority    WhisperPriority `json:"priority"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ProcessStatusRecord is the last known state of one agent process. It is
// created on the first heartbeat for a process id and rewritten on every
// subsequent heartbeat. LastWhisperIndex is the delivery cursor: the offset
// into the whisper log up to which messages have already been delivered.
type ProcessStatusRecord struct {
	ID                  string    `json:"id"`
	Type                string    `json:"type,omitempty"`
	Status              string    `json:"status"`
	PID                 int       `json:"pid,omitempty"`
	StartedAt           time.Time `json:"started_at"`
	LastHeartbeat       time.Time `json:"last_heartbeat"`
	LastWhisperIndex    int       `json:"last_whisper_index"`
	HeartbeatStatus     string    `json:"heartbeat_status,omitempty"`
	HeartbeatNextAction string    `json:"heartbeat_next_action,omitempty"`
}
