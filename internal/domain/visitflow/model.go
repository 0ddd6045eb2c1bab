package visitflow

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

// VisitFlow is one outpatient visit row. Cross-module references (patient,
// appointment, provider, facility) are opaque ids owned elsewhere.
type VisitFlow struct {
	ID             uuid.UUID               `db:"id" json:"id"`
	PatientID      string                  `db:"patient_id" json:"patient_id,omitempty"`
	PatientName    string                  `db:"patient_name" json:"patient_name,omitempty"`
	AppointmentID  string                  `db:"appointment_id" json:"appointment_id,omitempty"`
	ProviderID     string                  `db:"provider_id" json:"provider_id,omitempty"`
	FacilityID     string                  `db:"facility_id" json:"facility_id,omitempty"`
	ArrivalMode    string                  `db:"arrival_mode" json:"arrival_mode"`
	Stage          flowmodel.Stage         `db:"stage" json:"stage"`
	LinkedRecords  flowmodel.LinkedRecords `db:"linked_records" json:"linked_records"`
	CarePlans      []flowmodel.SubRecord   `db:"care_plans" json:"care_plans"`
	ClinicalAlerts []flowmodel.SubRecord   `db:"clinical_alerts" json:"clinical_alerts"`
	Referrals      []flowmodel.SubRecord   `db:"referrals" json:"referrals"`
	FollowUps      []flowmodel.SubRecord   `db:"follow_ups" json:"follow_ups"`
	Version        int                     `db:"version" json:"version"`
	CreatedAt      time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time               `db:"updated_at" json:"updated_at"`
}

// FlowEvent is one append-only timeline row with the payload that caused it.
type FlowEvent struct {
	ID        uuid.UUID            `db:"id" json:"id"`
	FlowID    uuid.UUID            `db:"flow_id" json:"flow_id"`
	Event     string               `db:"event" json:"event"`
	Label     string               `db:"label" json:"label,omitempty"`
	Action    flowmodel.ActionKind `db:"action" json:"action,omitempty"`
	FromStage flowmodel.Stage      `db:"from_stage" json:"from_stage,omitempty"`
	ToStage   flowmodel.Stage      `db:"to_stage" json:"to_stage"`
	ActorID   string               `db:"actor_id" json:"actor_id,omitempty"`
	Payload   json.RawMessage      `db:"payload" json:"payload,omitempty"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// ListFilter narrows List. Empty fields do not filter.
type ListFilter struct {
	Stage         flowmodel.Stage
	PatientID     string
	ProviderID    string
	AppointmentID string
	Query         string
	Limit         int
	Offset        int
}

// Actor is the authenticated caller performing an action.
type Actor struct {
	UserID     string
	TenantID   string
	FacilityID string
}

// ToSnapshot renders the wire snapshot, with events as the timeline.
func (f *VisitFlow) ToSnapshot(events []*FlowEvent) *flowmodel.FlowSnapshot {
	snap := &flowmodel.FlowSnapshot{
		ID:             f.ID.String(),
		Stage:          f.Stage,
		PatientID:      f.PatientID,
		PatientName:    f.PatientName,
		ProviderID:     f.ProviderID,
		FacilityID:     f.FacilityID,
		ArrivalMode:    f.ArrivalMode,
		LinkedRecords:  f.LinkedRecords,
		CarePlans:      nonNil(f.CarePlans),
		ClinicalAlerts: nonNil(f.ClinicalAlerts),
		Referrals:      nonNil(f.Referrals),
		FollowUps:      nonNil(f.FollowUps),
		Timeline:       []flowmodel.TimelineEvent{},
		Version:        f.Version,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
	for _, ev := range events {
		snap.Timeline = append(snap.Timeline, flowmodel.TimelineEvent{
			Event: ev.Event,
			At:    ev.CreatedAt,
			Label: ev.Label,
		})
	}
	return snap
}

// ToEntry renders the list row.
func (f *VisitFlow) ToEntry() flowmodel.FlowListEntry {
	return flowmodel.FlowListEntry{
		ID:          f.ID.String(),
		Stage:       f.Stage,
		PatientID:   f.PatientID,
		PatientName: f.PatientName,
		ProviderID:  f.ProviderID,
		EncounterID: f.LinkedRecords.EncounterID,
		ArrivalMode: f.ArrivalMode,
		Version:     f.Version,
		UpdatedAt:   f.UpdatedAt,
	}
}

func (f *VisitFlow) clone() *VisitFlow {
	cp := *f
	cp.LinkedRecords.LabOrderIDs = append([]string(nil), f.LinkedRecords.LabOrderIDs...)
	cp.LinkedRecords.RadiologyOrderIDs = append([]string(nil), f.LinkedRecords.RadiologyOrderIDs...)
	cp.CarePlans = append([]flowmodel.SubRecord(nil), f.CarePlans...)
	cp.ClinicalAlerts = append([]flowmodel.SubRecord(nil), f.ClinicalAlerts...)
	cp.Referrals = append([]flowmodel.SubRecord(nil), f.Referrals...)
	cp.FollowUps = append([]flowmodel.SubRecord(nil), f.FollowUps...)
	return &cp
}

func nonNil(in []flowmodel.SubRecord) []flowmodel.SubRecord {
	if in == nil {
		return []flowmodel.SubRecord{}
	}
	return in
}
