package visitflow

import (
	"strings"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

// Outcome selects a branch of a transition from the submitted payload.
type Outcome string

const (
	OutcomeAny             Outcome = ""
	OutcomeEmergency       Outcome = "emergency"
	OutcomePaid            Outcome = "paid"
	OutcomeUnpaid          Outcome = "unpaid"
	OutcomeLabAndRadiology Outcome = "lab_and_radiology"
	OutcomeLab             Outcome = "lab"
	OutcomeRadiology       Outcome = "radiology"
	OutcomeMedications     Outcome = "medications"
	OutcomeNoOrders        Outcome = "no_orders"
	OutcomeAdmit           Outcome = Outcome(flowmodel.DecisionAdmit)
	OutcomeDischarge       Outcome = Outcome(flowmodel.DecisionDischarge)
	OutcomeSendToPharmacy  Outcome = Outcome(flowmodel.DecisionSendToPharmacy)
)

// Transition is a single allowed edge of the visit lifecycle. The start
// action has an empty From.
type Transition struct {
	From   flowmodel.Stage
	Action flowmodel.ActionKind
	When   Outcome
	To     flowmodel.Stage
	Event  string
	Label  string
}

var dispositionFrom = []flowmodel.Stage{
	flowmodel.StageLabRequested,
	flowmodel.StageRadiologyRequested,
	flowmodel.StageLabAndRadiologyRequested,
	flowmodel.StagePharmacyRequested,
	flowmodel.StageWaitingDisposition,
}

var transitionsTable = buildTransitions()

func buildTransitions() []Transition {
	table := []Transition{
		// Arrival
		{Action: flowmodel.ActionStartVisit, When: OutcomeEmergency, To: flowmodel.StageWaitingVitals, Event: "VISIT_STARTED", Label: "Emergency arrival"},
		{Action: flowmodel.ActionStartVisit, When: OutcomePaid, To: flowmodel.StageWaitingVitals, Event: "VISIT_STARTED", Label: "Visit started, consultation paid"},
		{Action: flowmodel.ActionStartVisit, When: OutcomeUnpaid, To: flowmodel.StageWaitingConsultationPayment, Event: "VISIT_STARTED", Label: "Visit started"},

		{From: flowmodel.StageWaitingConsultationPayment, Action: flowmodel.ActionPayConsultation, To: flowmodel.StageWaitingVitals, Event: "CONSULTATION_PAID", Label: "Consultation paid"},
		{From: flowmodel.StageWaitingVitals, Action: flowmodel.ActionRecordVitals, To: flowmodel.StageWaitingDoctorAssignment, Event: "VITALS_RECORDED", Label: "Vitals recorded"},
		{From: flowmodel.StageWaitingDoctorAssignment, Action: flowmodel.ActionAssignDoctor, To: flowmodel.StageWaitingDoctorReview, Event: "DOCTOR_ASSIGNED", Label: "Doctor assigned"},

		// Consultation
		{From: flowmodel.StageWaitingDoctorReview, Action: flowmodel.ActionDoctorReview, When: OutcomeLabAndRadiology, To: flowmodel.StageLabAndRadiologyRequested, Event: "DOCTOR_REVIEWED", Label: "Lab and radiology requested"},
		{From: flowmodel.StageWaitingDoctorReview, Action: flowmodel.ActionDoctorReview, When: OutcomeLab, To: flowmodel.StageLabRequested, Event: "DOCTOR_REVIEWED", Label: "Lab requested"},
		{From: flowmodel.StageWaitingDoctorReview, Action: flowmodel.ActionDoctorReview, When: OutcomeRadiology, To: flowmodel.StageRadiologyRequested, Event: "DOCTOR_REVIEWED", Label: "Radiology requested"},
		{From: flowmodel.StageWaitingDoctorReview, Action: flowmodel.ActionDoctorReview, When: OutcomeMedications, To: flowmodel.StagePharmacyRequested, Event: "DOCTOR_REVIEWED", Label: "Medications prescribed"},
		{From: flowmodel.StageWaitingDoctorReview, Action: flowmodel.ActionDoctorReview, When: OutcomeNoOrders, To: flowmodel.StageWaitingDisposition, Event: "DOCTOR_REVIEWED", Label: "Consultation completed"},
	}

	// Disposition is accepted from every post-review stage.
	for _, from := range dispositionFrom {
		table = append(table,
			Transition{From: from, Action: flowmodel.ActionDisposition, When: OutcomeAdmit, To: flowmodel.StageAdmitted, Event: "DISPOSITION_RECORDED", Label: "Admitted"},
			Transition{From: from, Action: flowmodel.ActionDisposition, When: OutcomeDischarge, To: flowmodel.StageDischarged, Event: "DISPOSITION_RECORDED", Label: "Discharged"},
			Transition{From: from, Action: flowmodel.ActionDisposition, When: OutcomeSendToPharmacy, To: flowmodel.StagePharmacyRequested, Event: "DISPOSITION_RECORDED", Label: "Sent to pharmacy"},
		)
	}
	return table
}

// TransitionFor returns the edge for from+action+outcome.
func TransitionFor(from flowmodel.Stage, action flowmodel.ActionKind, when Outcome) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Action == action && (tr.When == OutcomeAny || tr.When == when) {
			return tr, true
		}
	}
	return Transition{}, false
}

// ActionAllowed reports whether action has any edge leaving from.
func ActionAllowed(from flowmodel.Stage, action flowmodel.ActionKind) bool {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Action == action {
			return true
		}
	}
	return false
}

func startOutcome(p flowmodel.StartVisitPayload) Outcome {
	switch {
	case p.ArrivalMode == flowmodel.ArrivalEmergency:
		return OutcomeEmergency
	case p.Payment != nil:
		return OutcomePaid
	}
	return OutcomeUnpaid
}

func reviewOutcome(p flowmodel.DoctorReviewPayload) Outcome {
	lab, rad := len(p.LabRequests) > 0, len(p.RadiologyRequests) > 0
	switch {
	case lab && rad:
		return OutcomeLabAndRadiology
	case lab:
		return OutcomeLab
	case rad:
		return OutcomeRadiology
	case len(p.Medications) > 0:
		return OutcomeMedications
	}
	return OutcomeNoOrders
}

func dispositionOutcome(p flowmodel.DispositionPayload) Outcome {
	return Outcome(strings.TrimSpace(p.Decision))
}
