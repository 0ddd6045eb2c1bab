package flowengine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

// ValidationError is a local, pre-submit failure. It is never sent to the
// backend.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// ValidateDraft checks the draft for kind and returns the sanitized payload
// ready for the backend.
func ValidateDraft(kind flowmodel.ActionKind, d Drafts) (interface{}, error) {
	switch kind {
	case flowmodel.ActionStartVisit:
		return ValidateStart(d.Start)
	case flowmodel.ActionPayConsultation:
		return ValidatePayment(d.Payment)
	case flowmodel.ActionRecordVitals:
		return ValidateVitals(d.Vitals)
	case flowmodel.ActionAssignDoctor:
		return ValidateAssignDoctor(d.Assign)
	case flowmodel.ActionDoctorReview:
		return ValidateDoctorReview(d.Review)
	case flowmodel.ActionDisposition:
		return ValidateDisposition(d.Disposition)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDraft, kind)
}

func ValidateStart(d VisitStartDraft) (flowmodel.StartVisitPayload, error) {
	mode := strings.TrimSpace(d.ArrivalMode)
	switch mode {
	case flowmodel.ArrivalWalkIn, flowmodel.ArrivalOnlineAppointment, flowmodel.ArrivalEmergency:
	default:
		return flowmodel.StartVisitPayload{}, invalid("arrivalMode", "Select how the patient arrived.")
	}

	patientID := strings.TrimSpace(d.PatientID)
	appointmentID := strings.TrimSpace(d.AppointmentID)
	first := strings.TrimSpace(d.FirstName)
	last := strings.TrimSpace(d.LastName)

	if mode == flowmodel.ArrivalOnlineAppointment && appointmentID == "" {
		return flowmodel.StartVisitPayload{}, invalid("appointmentId", "An appointment is required for online appointment arrivals.")
	}
	if patientID == "" && appointmentID == "" && (first == "" || last == "") {
		return flowmodel.StartVisitPayload{}, invalid("patientId", "Select a patient or appointment, or enter both first and last name.")
	}

	p := flowmodel.StartVisitPayload{
		ArrivalMode:     mode,
		PatientID:       patientID,
		AppointmentID:   appointmentID,
		ProviderID:      strings.TrimSpace(d.ProviderID),
		ConsultationFee: strings.TrimSpace(d.ConsultationFee),
		Currency:        strings.TrimSpace(d.Currency),
	}
	if patientID == "" && appointmentID == "" {
		p.Patient = &flowmodel.InlinePatient{FirstName: first, LastName: last}
	}
	if d.PayNow {
		method := strings.TrimSpace(d.PaymentMethod)
		if method == "" {
			return flowmodel.StartVisitPayload{}, invalid("paymentMethod", "Select a payment method.")
		}
		amount := strings.TrimSpace(d.PaymentAmount)
		if amount == "" {
			amount = p.ConsultationFee
		}
		p.Payment = &flowmodel.PaymentPayload{
			Method:         method,
			Amount:         amount,
			Currency:       p.Currency,
			TransactionRef: strings.TrimSpace(d.PaymentReference),
		}
	}
	if mode == flowmodel.ArrivalEmergency {
		p.Emergency = &flowmodel.EmergencyDetails{
			Severity:    strings.TrimSpace(d.EmergencySeverity),
			TriageLevel: strings.TrimSpace(d.EmergencyTriageLevel),
			Notes:       strings.TrimSpace(d.EmergencyNotes),
		}
	}
	return p, nil
}

func ValidatePayment(d PaymentDraft) (flowmodel.PaymentPayload, error) {
	method := strings.TrimSpace(d.Method)
	if method == "" {
		return flowmodel.PaymentPayload{}, invalid("method", "Select a payment method.")
	}
	return flowmodel.PaymentPayload{
		Method:         method,
		Amount:         strings.TrimSpace(d.Amount),
		Currency:       strings.TrimSpace(d.Currency),
		TransactionRef: strings.TrimSpace(d.TransactionRef),
		Notes:          strings.TrimSpace(d.Notes),
	}, nil
}

// ValidateVitals drops incomplete rows silently; it fails only when no row
// is left.
func ValidateVitals(d VitalsDraft) (flowmodel.VitalsPayload, error) {
	var vitals []flowmodel.VitalSign
	for _, row := range d.Rows {
		typ := strings.TrimSpace(row.VitalType)
		value := strings.TrimSpace(row.Value)
		if typ == "" || value == "" {
			continue
		}
		v := flowmodel.VitalSign{
			VitalType: typ,
			Value:     value,
			Unit:      strings.TrimSpace(row.Unit),
		}
		if typ == flowmodel.VitalBloodPressure {
			v.Systolic = atoiPtr(row.Systolic)
			v.Diastolic = atoiPtr(row.Diastolic)
			v.MeanArterialPressure = atoiPtr(row.MeanArterialPressure)
		}
		vitals = append(vitals, v)
	}
	if len(vitals) == 0 {
		return flowmodel.VitalsPayload{}, invalid("vitals", "Record at least one vital sign.")
	}
	return flowmodel.VitalsPayload{
		Vitals:      vitals,
		TriageLevel: strings.TrimSpace(d.TriageLevel),
		TriageNotes: strings.TrimSpace(d.TriageNotes),
	}, nil
}

func ValidateAssignDoctor(d AssignDoctorDraft) (flowmodel.AssignDoctorPayload, error) {
	id := strings.TrimSpace(d.ProviderID)
	if id == "" {
		return flowmodel.AssignDoctorPayload{}, invalid("providerId", "Select a doctor to assign.")
	}
	return flowmodel.AssignDoctorPayload{ProviderID: id}, nil
}

// ValidateDoctorReview requires the note; every row collection is filtered
// to its complete rows instead of blocking submission.
func ValidateDoctorReview(d DoctorReviewDraft) (flowmodel.DoctorReviewPayload, error) {
	note := strings.TrimSpace(d.Note)
	if note == "" {
		return flowmodel.DoctorReviewPayload{}, invalid("note", "Enter the consultation note.")
	}
	p := flowmodel.DoctorReviewPayload{
		Note:              note,
		Diagnoses:         []flowmodel.Diagnosis{},
		Procedures:        []flowmodel.Procedure{},
		LabRequests:       []flowmodel.TestRequest{},
		RadiologyRequests: []flowmodel.TestRequest{},
		Medications:       []flowmodel.Medication{},
	}
	for _, r := range d.Diagnoses {
		typ, desc := strings.TrimSpace(r.Type), strings.TrimSpace(r.Description)
		if typ == "" || desc == "" {
			continue
		}
		p.Diagnoses = append(p.Diagnoses, flowmodel.Diagnosis{Type: typ, Code: strings.TrimSpace(r.Code), Description: desc})
	}
	for _, r := range d.Procedures {
		desc := strings.TrimSpace(r.Description)
		if desc == "" {
			continue
		}
		p.Procedures = append(p.Procedures, flowmodel.Procedure{Code: strings.TrimSpace(r.Code), Description: desc})
	}
	p.LabRequests = testRequests(d.LabRequests)
	p.RadiologyRequests = testRequests(d.RadiologyRequests)
	for _, r := range d.Medications {
		drug := strings.TrimSpace(r.DrugID)
		qty, ok := positiveQuantity(r.Quantity)
		if drug == "" || !ok {
			continue
		}
		p.Medications = append(p.Medications, flowmodel.Medication{
			DrugID:       drug,
			Quantity:     qty,
			Frequency:    strings.TrimSpace(r.Frequency),
			Route:        strings.TrimSpace(r.Route),
			DurationDays: strings.TrimSpace(r.DurationDays),
			Instructions: strings.TrimSpace(r.Instructions),
		})
	}
	return p, nil
}

// ValidateDisposition requires a decision. The admission facility is passed
// through for ADMIT but is not mandatory here.
func ValidateDisposition(d DispositionDraft) (flowmodel.DispositionPayload, error) {
	decision := strings.TrimSpace(d.Decision)
	switch decision {
	case flowmodel.DecisionAdmit, flowmodel.DecisionSendToPharmacy, flowmodel.DecisionDischarge:
	case "":
		return flowmodel.DispositionPayload{}, invalid("decision", "Select a disposition decision.")
	default:
		return flowmodel.DispositionPayload{}, invalid("decision", fmt.Sprintf("Unknown disposition decision %q.", decision))
	}
	p := flowmodel.DispositionPayload{Decision: decision, Notes: strings.TrimSpace(d.Notes)}
	if decision == flowmodel.DecisionAdmit {
		p.AdmissionFacilityID = strings.TrimSpace(d.AdmissionFacilityID)
	}
	return p, nil
}

func testRequests(rows []TestRequestRow) []flowmodel.TestRequest {
	out := []flowmodel.TestRequest{}
	for _, r := range rows {
		id := strings.TrimSpace(r.TestID)
		if id == "" {
			continue
		}
		out = append(out, flowmodel.TestRequest{
			TestID:   id,
			Priority: strings.TrimSpace(r.Priority),
			Notes:    strings.TrimSpace(r.Notes),
		})
	}
	return out
}

func positiveQuantity(raw string) (float64, bool) {
	q, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(q) || math.IsInf(q, 0) || q <= 0 {
		return 0, false
	}
	return q, true
}

func atoiPtr(raw string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &n
}
