package visitflow

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

// StageNotifier is told about every committed start or transition.
type StageNotifier interface {
	StageChanged(ctx context.Context, ev flowmodel.StageChangeEvent)
}

// Service owns the visit lifecycle. Clients never compute the next stage:
// it is always taken from the transition table here.
type Service struct {
	repo      Repository
	notifiers []StageNotifier
	now       func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// AddNotifier registers n for stage-change events.
func (s *Service) AddNotifier(n StageNotifier) {
	if n != nil {
		s.notifiers = append(s.notifiers, n)
	}
}

var validArrivalModes = map[string]bool{
	flowmodel.ArrivalWalkIn:            true,
	flowmodel.ArrivalOnlineAppointment: true,
	flowmodel.ArrivalEmergency:         true,
}

func (s *Service) GetVisit(ctx context.Context, id string) (*flowmodel.FlowSnapshot, error) {
	fid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	f, err := s.repo.GetByID(ctx, fid)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, f)
}

func (s *Service) ListVisits(ctx context.Context, filter ListFilter) ([]flowmodel.FlowListEntry, int, error) {
	if filter.Stage != "" && !filter.Stage.Valid() {
		return nil, 0, invalid("stage", fmt.Sprintf("unknown stage %q", filter.Stage))
	}
	flows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	entries := make([]flowmodel.FlowListEntry, 0, len(flows))
	for _, f := range flows {
		entries = append(entries, f.ToEntry())
	}
	return entries, total, nil
}

func (s *Service) StartVisit(ctx context.Context, actor Actor, p flowmodel.StartVisitPayload) (*flowmodel.FlowSnapshot, error) {
	if err := validateStart(p); err != nil {
		return nil, err
	}
	tr, ok := TransitionFor("", flowmodel.ActionStartVisit, startOutcome(p))
	if !ok {
		return nil, invalid("arrivalMode", "no start transition for arrival")
	}

	f := &VisitFlow{
		ID:            uuid.New(),
		PatientID:     strings.TrimSpace(p.PatientID),
		AppointmentID: strings.TrimSpace(p.AppointmentID),
		ProviderID:    strings.TrimSpace(p.ProviderID),
		FacilityID:    actor.FacilityID,
		ArrivalMode:   p.ArrivalMode,
		Stage:         tr.To,
	}
	if p.Patient != nil {
		f.PatientName = strings.TrimSpace(p.Patient.FirstName + " " + p.Patient.LastName)
		if f.PatientID == "" {
			f.PatientID = uuid.NewString()
		}
	}
	f.LinkedRecords.EncounterID = uuid.NewString()
	f.LinkedRecords.QueueTicketID = uuid.NewString()
	f.LinkedRecords.AppointmentID = f.AppointmentID
	if strings.TrimSpace(p.ConsultationFee) != "" || p.Payment != nil {
		f.LinkedRecords.InvoiceID = uuid.NewString()
	}
	if p.Payment != nil {
		f.LinkedRecords.PaymentID = uuid.NewString()
	}
	if p.Emergency != nil || p.ArrivalMode == flowmodel.ArrivalEmergency {
		f.LinkedRecords.EmergencyCaseID = uuid.NewString()
		if p.Emergency != nil {
			f.ClinicalAlerts = s.triageAlerts(f.ClinicalAlerts, p.Emergency.TriageLevel)
		}
	}

	ev, err := s.event(tr, "", actor, p)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, f, ev); err != nil {
		return nil, fmt.Errorf("create visit flow: %w", err)
	}
	s.notify(ctx, actor, f, flowmodel.ActionStartVisit, "")
	return s.snapshot(ctx, f)
}

func (s *Service) PayConsultation(ctx context.Context, actor Actor, id string, p flowmodel.PaymentPayload) (*flowmodel.FlowSnapshot, error) {
	if err := validatePayment(p); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, flowmodel.ActionPayConsultation, OutcomeAny, p, func(f *VisitFlow) {
		if f.LinkedRecords.InvoiceID == "" {
			f.LinkedRecords.InvoiceID = uuid.NewString()
		}
		f.LinkedRecords.PaymentID = uuid.NewString()
	})
}

func (s *Service) RecordVitals(ctx context.Context, actor Actor, id string, p flowmodel.VitalsPayload) (*flowmodel.FlowSnapshot, error) {
	if err := validateVitals(p); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, flowmodel.ActionRecordVitals, OutcomeAny, p, func(f *VisitFlow) {
		f.LinkedRecords.TriageAssessmentID = uuid.NewString()
		f.ClinicalAlerts = s.triageAlerts(f.ClinicalAlerts, p.TriageLevel)
	})
}

func (s *Service) AssignDoctor(ctx context.Context, actor Actor, id string, p flowmodel.AssignDoctorPayload) (*flowmodel.FlowSnapshot, error) {
	providerID := strings.TrimSpace(p.ProviderID)
	if providerID == "" {
		return nil, invalid("providerId", "provider is required")
	}
	return s.transition(ctx, actor, id, flowmodel.ActionAssignDoctor, OutcomeAny, p, func(f *VisitFlow) {
		f.ProviderID = providerID
	})
}

func (s *Service) DoctorReview(ctx context.Context, actor Actor, id string, p flowmodel.DoctorReviewPayload) (*flowmodel.FlowSnapshot, error) {
	if strings.TrimSpace(p.Note) == "" {
		return nil, invalid("note", "consultation note is required")
	}
	for i, m := range p.Medications {
		if strings.TrimSpace(m.DrugID) == "" || m.Quantity <= 0 {
			return nil, invalid(fmt.Sprintf("medications[%d]", i), "drug and a positive quantity are required")
		}
	}
	return s.transition(ctx, actor, id, flowmodel.ActionDoctorReview, reviewOutcome(p), p, func(f *VisitFlow) {
		for range p.LabRequests {
			f.LinkedRecords.LabOrderIDs = append(f.LinkedRecords.LabOrderIDs, uuid.NewString())
		}
		for range p.RadiologyRequests {
			f.LinkedRecords.RadiologyOrderIDs = append(f.LinkedRecords.RadiologyOrderIDs, uuid.NewString())
		}
		if len(p.Medications) > 0 {
			f.LinkedRecords.PharmacyOrderID = uuid.NewString()
		}
		if len(p.Diagnoses) > 0 || len(p.Procedures) > 0 {
			f.CarePlans = append(f.CarePlans, flowmodel.SubRecord{
				ID:      uuid.NewString(),
				Type:    "CONSULTATION_PLAN",
				Status:  flowmodel.RecordStatusActive,
				Summary: carePlanSummary(p),
			})
		}
	})
}

func (s *Service) Disposition(ctx context.Context, actor Actor, id string, p flowmodel.DispositionPayload) (*flowmodel.FlowSnapshot, error) {
	outcome := dispositionOutcome(p)
	switch string(outcome) {
	case flowmodel.DecisionAdmit, flowmodel.DecisionDischarge, flowmodel.DecisionSendToPharmacy:
	case "":
		return nil, invalid("decision", "decision is required")
	default:
		return nil, invalid("decision", fmt.Sprintf("unknown decision %q", p.Decision))
	}
	return s.transition(ctx, actor, id, flowmodel.ActionDisposition, outcome, p, func(f *VisitFlow) {
		notes := strings.TrimSpace(p.Notes)
		switch string(outcome) {
		case flowmodel.DecisionAdmit:
			f.LinkedRecords.AdmissionID = uuid.NewString()
			if fac := strings.TrimSpace(p.AdmissionFacilityID); fac != "" {
				f.FacilityID = fac
			}
		case flowmodel.DecisionSendToPharmacy:
			if f.LinkedRecords.PharmacyOrderID == "" {
				f.LinkedRecords.PharmacyOrderID = uuid.NewString()
			}
		case flowmodel.DecisionDischarge:
			if notes != "" {
				f.FollowUps = append(f.FollowUps, flowmodel.SubRecord{
					ID:      uuid.NewString(),
					Type:    "DISCHARGE_FOLLOW_UP",
					Status:  flowmodel.RecordStatusPending,
					Summary: notes,
				})
			}
		}
	})
}

// transition loads the flow, checks the edge, applies mutate to a copy and
// writes it under the loaded version.
func (s *Service) transition(ctx context.Context, actor Actor, id string, action flowmodel.ActionKind, outcome Outcome, payload interface{}, mutate func(*VisitFlow)) (*flowmodel.FlowSnapshot, error) {
	fid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	cur, err := s.repo.GetByID(ctx, fid)
	if err != nil {
		return nil, err
	}
	from := cur.Stage
	if !ActionAllowed(from, action) {
		return nil, stageConflict(from, action)
	}
	tr, ok := TransitionFor(from, action, outcome)
	if !ok {
		return nil, invalid("decision", fmt.Sprintf("no transition for %s from %s", action, from))
	}

	next := cur.clone()
	mutate(next)
	next.Stage = tr.To
	ev, err := s.event(tr, from, actor, payload)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, next, cur.Version, ev); err != nil {
		return nil, err
	}
	s.notify(ctx, actor, next, action, from)
	return s.snapshot(ctx, next)
}

func (s *Service) snapshot(ctx context.Context, f *VisitFlow) (*flowmodel.FlowSnapshot, error) {
	events, err := s.repo.Events(ctx, f.ID)
	if err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}
	return f.ToSnapshot(events), nil
}

func (s *Service) event(tr Transition, from flowmodel.Stage, actor Actor, payload interface{}) (*FlowEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s event payload: %w", tr.Event, err)
	}
	return &FlowEvent{
		Event:     tr.Event,
		Label:     tr.Label,
		Action:    tr.Action,
		FromStage: from,
		ToStage:   tr.To,
		ActorID:   actor.UserID,
		Payload:   raw,
		CreatedAt: s.now(),
	}, nil
}

func (s *Service) notify(ctx context.Context, actor Actor, f *VisitFlow, action flowmodel.ActionKind, from flowmodel.Stage) {
	if len(s.notifiers) == 0 {
		return
	}
	ev := flowmodel.StageChangeEvent{
		Type:       flowmodel.EventStageChanged,
		TenantID:   actor.TenantID,
		FlowID:     f.ID.String(),
		PatientID:  f.PatientID,
		Action:     action,
		From:       from,
		To:         f.Stage,
		Version:    f.Version,
		Actor:      actor.UserID,
		OccurredAt: s.now(),
	}
	for _, n := range s.notifiers {
		n.StageChanged(ctx, ev)
	}
}

// triageAlerts raises a CRITICAL_TRIAGE alert for triage levels 1 and 2.
func (s *Service) triageAlerts(alerts []flowmodel.SubRecord, level string) []flowmodel.SubRecord {
	n, err := strconv.Atoi(strings.TrimSpace(level))
	if err != nil || n < 1 || n > 2 {
		return alerts
	}
	return append(alerts, flowmodel.SubRecord{
		ID:      uuid.NewString(),
		Type:    "CRITICAL_TRIAGE",
		Status:  flowmodel.RecordStatusActive,
		Summary: fmt.Sprintf("Triage level %d", n),
	})
}

func carePlanSummary(p flowmodel.DoctorReviewPayload) string {
	var parts []string
	for _, d := range p.Diagnoses {
		parts = append(parts, d.Description)
	}
	for _, pr := range p.Procedures {
		parts = append(parts, pr.Description)
	}
	return strings.Join(parts, "; ")
}

func parseID(id string) (uuid.UUID, error) {
	fid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, ErrNotFound
	}
	return fid, nil
}

func validateStart(p flowmodel.StartVisitPayload) error {
	if !validArrivalModes[p.ArrivalMode] {
		return invalid("arrivalMode", fmt.Sprintf("unknown arrival mode %q", p.ArrivalMode))
	}
	patientID := strings.TrimSpace(p.PatientID)
	appointmentID := strings.TrimSpace(p.AppointmentID)
	if p.ArrivalMode == flowmodel.ArrivalOnlineAppointment && appointmentID == "" {
		return invalid("appointmentId", "appointment is required for online appointment arrivals")
	}
	if patientID == "" && appointmentID == "" {
		if p.Patient == nil || strings.TrimSpace(p.Patient.FirstName) == "" || strings.TrimSpace(p.Patient.LastName) == "" {
			return invalid("patient", "patient, appointment, or first and last name is required")
		}
	}
	if fee := strings.TrimSpace(p.ConsultationFee); fee != "" {
		if err := validateAmount("consultationFee", fee); err != nil {
			return err
		}
	}
	if p.Payment != nil {
		return validatePayment(*p.Payment)
	}
	return nil
}

func validatePayment(p flowmodel.PaymentPayload) error {
	if strings.TrimSpace(p.Method) == "" {
		return invalid("method", "payment method is required")
	}
	return nil
}

func validateAmount(field, raw string) error {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(field, "must be a non-negative number")
	}
	return nil
}

func validateVitals(p flowmodel.VitalsPayload) error {
	for _, v := range p.Vitals {
		if strings.TrimSpace(v.VitalType) != "" && strings.TrimSpace(v.Value) != "" {
			return nil
		}
	}
	return invalid("vitals", "at least one vital sign is required")
}
