package flowmodel

import "time"

// EventStageChanged is the type of StageChangeEvent on every transport.
const EventStageChanged = "visitflow.stage_changed"

// StageChangeEvent is published after a visit starts or moves stage.
type StageChangeEvent struct {
	Type       string     `json:"type"`
	TenantID   string     `json:"tenantId"`
	FlowID     string     `json:"flowId"`
	PatientID  string     `json:"patientId,omitempty"`
	Action     ActionKind `json:"action"`
	From       Stage      `json:"from,omitempty"`
	To         Stage      `json:"to"`
	Version    int        `json:"version"`
	Actor      string     `json:"actor,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}
