package flowmodel

import "time"

// LinkedRecords maps logical record names to foreign identifiers. All optional.
type LinkedRecords struct {
	EncounterID        string   `json:"encounterId,omitempty" yaml:"encounterId,omitempty"`
	QueueTicketID      string   `json:"queueTicketId,omitempty" yaml:"queueTicketId,omitempty"`
	AppointmentID      string   `json:"appointmentId,omitempty" yaml:"appointmentId,omitempty"`
	InvoiceID          string   `json:"invoiceId,omitempty" yaml:"invoiceId,omitempty"`
	PaymentID          string   `json:"paymentId,omitempty" yaml:"paymentId,omitempty"`
	EmergencyCaseID    string   `json:"emergencyCaseId,omitempty" yaml:"emergencyCaseId,omitempty"`
	TriageAssessmentID string   `json:"triageAssessmentId,omitempty" yaml:"triageAssessmentId,omitempty"`
	LabOrderIDs        []string `json:"labOrderIds,omitempty" yaml:"labOrderIds,omitempty"`
	RadiologyOrderIDs  []string `json:"radiologyOrderIds,omitempty" yaml:"radiologyOrderIds,omitempty"`
	PharmacyOrderID    string   `json:"pharmacyOrderId,omitempty" yaml:"pharmacyOrderId,omitempty"`
	AdmissionID        string   `json:"admissionId,omitempty" yaml:"admissionId,omitempty"`
}

// SubRecord is a loosely-typed item attached to a visit (care plan, alert,
// referral, follow-up). Each carries its own status.
type SubRecord struct {
	ID      string `json:"id" yaml:"id"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Status  string `json:"status" yaml:"status"`
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// TimelineEvent is one append-only entry of a visit's history.
type TimelineEvent struct {
	Event string    `json:"event" yaml:"event"`
	At    time.Time `json:"at" yaml:"at"`
	Label string    `json:"label,omitempty" yaml:"label,omitempty"`
}

// FlowSnapshot is the authoritative representation of one visit as held by
// the backend.
type FlowSnapshot struct {
	ID             string          `json:"id" yaml:"id"`
	Stage          Stage           `json:"stage" yaml:"stage"`
	PatientID      string          `json:"patientId,omitempty" yaml:"patientId,omitempty"`
	PatientName    string          `json:"patientName,omitempty" yaml:"patientName,omitempty"`
	ProviderID     string          `json:"providerId,omitempty" yaml:"providerId,omitempty"`
	FacilityID     string          `json:"facilityId,omitempty" yaml:"facilityId,omitempty"`
	ArrivalMode    string          `json:"arrivalMode,omitempty" yaml:"arrivalMode,omitempty"`
	LinkedRecords  LinkedRecords   `json:"linkedRecordIds" yaml:"linkedRecordIds"`
	CarePlans      []SubRecord     `json:"carePlans" yaml:"carePlans"`
	ClinicalAlerts []SubRecord     `json:"clinicalAlerts" yaml:"clinicalAlerts"`
	Referrals      []SubRecord     `json:"referrals" yaml:"referrals"`
	FollowUps      []SubRecord     `json:"followUps" yaml:"followUps"`
	Timeline       []TimelineEvent `json:"timeline" yaml:"timeline"`
	Version        int             `json:"version" yaml:"version"`
	CreatedAt      time.Time       `json:"createdAt" yaml:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt" yaml:"updatedAt"`
}

// FlowListEntry is the list-view projection of a FlowSnapshot.
type FlowListEntry struct {
	ID          string    `json:"id" yaml:"id"`
	Stage       Stage     `json:"stage" yaml:"stage"`
	PatientID   string    `json:"patientId,omitempty" yaml:"patientId,omitempty"`
	PatientName string    `json:"patientName,omitempty" yaml:"patientName,omitempty"`
	ProviderID  string    `json:"providerId,omitempty" yaml:"providerId,omitempty"`
	EncounterID string    `json:"encounterId,omitempty" yaml:"encounterId,omitempty"`
	ArrivalMode string    `json:"arrivalMode,omitempty" yaml:"arrivalMode,omitempty"`
	Version     int       `json:"version,omitempty" yaml:"version,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Entry projects the snapshot into its list row.
func (s *FlowSnapshot) Entry() FlowListEntry {
	return FlowListEntry{
		ID:          s.ID,
		Stage:       s.Stage,
		PatientID:   s.PatientID,
		PatientName: s.PatientName,
		ProviderID:  s.ProviderID,
		EncounterID: s.LinkedRecords.EncounterID,
		ArrivalMode: s.ArrivalMode,
		Version:     s.Version,
		UpdatedAt:   s.UpdatedAt,
	}
}
