package flowengine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

const defaultCurrency = "USD"

var (
	ErrUnknownDraft      = errors.New("unknown draft")
	ErrUnknownField      = errors.New("unknown field")
	ErrUnknownCollection = errors.New("unknown row collection")
	ErrRowIndex          = errors.New("row index out of range")
)

// Collection names a row repeater inside a draft.
type Collection string

const (
	CollectionVitals            Collection = "vitals"
	CollectionDiagnoses         Collection = "diagnoses"
	CollectionProcedures        Collection = "procedures"
	CollectionLabRequests       Collection = "labRequests"
	CollectionRadiologyRequests Collection = "radiologyRequests"
	CollectionMedications       Collection = "medications"
)

// VisitStartDraft collects the inputs for opening a visit. The emergency
// fields are only sent when ArrivalMode is EMERGENCY, and the payment fields
// only when PayNow is set.
type VisitStartDraft struct {
	ArrivalMode          string `json:"arrivalMode" yaml:"arrivalMode"`
	PatientID            string `json:"patientId" yaml:"patientId"`
	AppointmentID        string `json:"appointmentId" yaml:"appointmentId"`
	FirstName            string `json:"firstName" yaml:"firstName"`
	LastName             string `json:"lastName" yaml:"lastName"`
	ProviderID           string `json:"providerId" yaml:"providerId"`
	ConsultationFee      string `json:"consultationFee" yaml:"consultationFee"`
	Currency             string `json:"currency" yaml:"currency"`
	PayNow               bool   `json:"payNow" yaml:"payNow"`
	PaymentMethod        string `json:"paymentMethod" yaml:"paymentMethod"`
	PaymentAmount        string `json:"paymentAmount" yaml:"paymentAmount"`
	PaymentReference     string `json:"paymentReference" yaml:"paymentReference"`
	EmergencySeverity    string `json:"emergencySeverity" yaml:"emergencySeverity"`
	EmergencyTriageLevel string `json:"emergencyTriageLevel" yaml:"emergencyTriageLevel"`
	EmergencyNotes       string `json:"emergencyNotes" yaml:"emergencyNotes"`
}

type PaymentDraft struct {
	Method         string `json:"method" yaml:"method"`
	Amount         string `json:"amount" yaml:"amount"`
	Currency       string `json:"currency" yaml:"currency"`
	TransactionRef string `json:"transactionRef" yaml:"transactionRef"`
	Notes          string `json:"notes" yaml:"notes"`
}

// VitalRow is one vital-sign input. Blood-pressure rows use Systolic and
// Diastolic; Value and MeanArterialPressure are derived from them until
// MAPOverridden is set.
type VitalRow struct {
	VitalType            string `json:"vitalType" yaml:"vitalType"`
	Value                string `json:"value" yaml:"value"`
	Unit                 string `json:"unit" yaml:"unit"`
	Systolic             string `json:"systolic,omitempty" yaml:"systolic,omitempty"`
	Diastolic            string `json:"diastolic,omitempty" yaml:"diastolic,omitempty"`
	MeanArterialPressure string `json:"meanArterialPressure,omitempty" yaml:"meanArterialPressure,omitempty"`
	MAPOverridden        bool   `json:"mapOverridden,omitempty" yaml:"mapOverridden,omitempty"`
}

// VitalsDraft always holds at least one row.
type VitalsDraft struct {
	Rows        []VitalRow `json:"rows" yaml:"rows"`
	TriageLevel string     `json:"triageLevel" yaml:"triageLevel"`
	TriageNotes string     `json:"triageNotes" yaml:"triageNotes"`
}

type AssignDoctorDraft struct {
	ProviderID string `json:"providerId" yaml:"providerId"`
}

type DiagnosisRow struct {
	Type        string `json:"type" yaml:"type"`
	Code        string `json:"code" yaml:"code"`
	Description string `json:"description" yaml:"description"`
}

type ProcedureRow struct {
	Code        string `json:"code" yaml:"code"`
	Description string `json:"description" yaml:"description"`
}

type TestRequestRow struct {
	TestID   string `json:"testId" yaml:"testId"`
	Priority string `json:"priority" yaml:"priority"`
	Notes    string `json:"notes" yaml:"notes"`
}

// MedicationRow keeps Quantity as entered; it is parsed at submit time.
type MedicationRow struct {
	DrugID       string `json:"drugId" yaml:"drugId"`
	Quantity     string `json:"quantity" yaml:"quantity"`
	Frequency    string `json:"frequency" yaml:"frequency"`
	Route        string `json:"route" yaml:"route"`
	DurationDays string `json:"durationDays" yaml:"durationDays"`
	Instructions string `json:"instructions" yaml:"instructions"`
}

type DoctorReviewDraft struct {
	Note              string           `json:"note" yaml:"note"`
	Diagnoses         []DiagnosisRow   `json:"diagnoses" yaml:"diagnoses"`
	Procedures        []ProcedureRow   `json:"procedures" yaml:"procedures"`
	LabRequests       []TestRequestRow `json:"labRequests" yaml:"labRequests"`
	RadiologyRequests []TestRequestRow `json:"radiologyRequests" yaml:"radiologyRequests"`
	Medications       []MedicationRow  `json:"medications" yaml:"medications"`
}

type DispositionDraft struct {
	Decision            string `json:"decision" yaml:"decision"`
	AdmissionFacilityID string `json:"admissionFacilityId" yaml:"admissionFacilityId"`
	Notes               string `json:"notes" yaml:"notes"`
}

// Drafts is the arena holding one draft per action kind. It is treated as a
// value: every mutation returns a new Drafts and never writes through a
// slice shared with the previous one.
type Drafts struct {
	Start       VisitStartDraft   `json:"start" yaml:"start"`
	Payment     PaymentDraft      `json:"payment" yaml:"payment"`
	Vitals      VitalsDraft       `json:"vitals" yaml:"vitals"`
	Assign      AssignDoctorDraft `json:"assign" yaml:"assign"`
	Review      DoctorReviewDraft `json:"review" yaml:"review"`
	Disposition DispositionDraft  `json:"disposition" yaml:"disposition"`
}

// DefaultDrafts returns every draft at its defaults.
func DefaultDrafts() Drafts {
	return Drafts{
		Start:       DefaultVisitStartDraft(),
		Payment:     PaymentDraft{Currency: defaultCurrency},
		Vitals:      DefaultVitalsDraft(),
		Assign:      AssignDoctorDraft{},
		Review:      DoctorReviewDraft{},
		Disposition: DispositionDraft{},
	}
}

func DefaultVisitStartDraft() VisitStartDraft {
	return VisitStartDraft{
		ArrivalMode: flowmodel.ArrivalWalkIn,
		Currency:    defaultCurrency,
	}
}

func DefaultVitalsDraft() VitalsDraft {
	return VitalsDraft{Rows: []VitalRow{defaultVitalRow()}}
}

func defaultVitalRow() VitalRow { return VitalRow{} }

func defaultDiagnosisRow() DiagnosisRow { return DiagnosisRow{Type: "PRIMARY"} }

func defaultTestRequestRow() TestRequestRow { return TestRequestRow{Priority: "ROUTINE"} }

func defaultMedicationRow() MedicationRow {
	return MedicationRow{Quantity: "1", Frequency: "BID", Route: "ORAL"}
}

// Reset returns the defaults for a single action kind, leaving the others.
func (d Drafts) Reset(kind flowmodel.ActionKind) Drafts {
	def := DefaultDrafts()
	switch kind {
	case flowmodel.ActionStartVisit:
		d.Start = def.Start
	case flowmodel.ActionPayConsultation:
		d.Payment = def.Payment
	case flowmodel.ActionRecordVitals:
		d.Vitals = def.Vitals
	case flowmodel.ActionAssignDoctor:
		d.Assign = def.Assign
	case flowmodel.ActionDoctorReview:
		d.Review = def.Review
	case flowmodel.ActionDisposition:
		d.Disposition = def.Disposition
	}
	return d
}

// SetField sets a top-level field of the draft for kind.
func (d Drafts) SetField(kind flowmodel.ActionKind, name, value string) (Drafts, error) {
	var ok bool
	switch kind {
	case flowmodel.ActionStartVisit:
		ok = setStartField(&d.Start, name, value)
	case flowmodel.ActionPayConsultation:
		ok = setPaymentField(&d.Payment, name, value)
	case flowmodel.ActionRecordVitals:
		ok = setVitalsField(&d.Vitals, name, value)
	case flowmodel.ActionAssignDoctor:
		if name == "providerId" {
			d.Assign.ProviderID = value
			ok = true
		}
	case flowmodel.ActionDoctorReview:
		if name == "note" {
			d.Review.Note = value
			ok = true
		}
	case flowmodel.ActionDisposition:
		ok = setDispositionField(&d.Disposition, name, value)
	default:
		return d, fmt.Errorf("%w: %q", ErrUnknownDraft, kind)
	}
	if !ok {
		return d, fmt.Errorf("%w: %s.%s", ErrUnknownField, kind, name)
	}
	return d, nil
}

func setStartField(s *VisitStartDraft, name, value string) bool {
	switch name {
	case "arrivalMode":
		s.ArrivalMode = value
	case "patientId":
		s.PatientID = value
	case "appointmentId":
		s.AppointmentID = value
	case "firstName":
		s.FirstName = value
	case "lastName":
		s.LastName = value
	case "providerId":
		s.ProviderID = value
	case "consultationFee":
		s.ConsultationFee = value
	case "currency":
		s.Currency = value
	case "payNow":
		s.PayNow = parseBool(value)
	case "paymentMethod":
		s.PaymentMethod = value
	case "paymentAmount":
		s.PaymentAmount = value
	case "paymentReference":
		s.PaymentReference = value
	case "emergencySeverity":
		s.EmergencySeverity = value
	case "emergencyTriageLevel":
		s.EmergencyTriageLevel = value
	case "emergencyNotes":
		s.EmergencyNotes = value
	default:
		return false
	}
	return true
}

func setPaymentField(p *PaymentDraft, name, value string) bool {
	switch name {
	case "method":
		p.Method = value
	case "amount":
		p.Amount = value
	case "currency":
		p.Currency = value
	case "transactionRef":
		p.TransactionRef = value
	case "notes":
		p.Notes = value
	default:
		return false
	}
	return true
}

func setVitalsField(v *VitalsDraft, name, value string) bool {
	switch name {
	case "triageLevel":
		v.TriageLevel = value
	case "triageNotes":
		v.TriageNotes = value
	default:
		return false
	}
	return true
}

func setDispositionField(p *DispositionDraft, name, value string) bool {
	switch name {
	case "decision":
		p.Decision = value
	case "admissionFacilityId":
		p.AdmissionFacilityID = value
	case "notes":
		p.Notes = value
	default:
		return false
	}
	return true
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func collectionOwner(c Collection) flowmodel.ActionKind {
	switch c {
	case CollectionVitals:
		return flowmodel.ActionRecordVitals
	case CollectionDiagnoses, CollectionProcedures, CollectionLabRequests,
		CollectionRadiologyRequests, CollectionMedications:
		return flowmodel.ActionDoctorReview
	}
	return flowmodel.ActionNone
}

func checkCollection(kind flowmodel.ActionKind, c Collection) error {
	if owner := collectionOwner(c); owner == flowmodel.ActionNone || owner != kind {
		return fmt.Errorf("%w: %s.%s", ErrUnknownCollection, kind, c)
	}
	return nil
}

// AddRow appends a default row to a repeater.
func (d Drafts) AddRow(kind flowmodel.ActionKind, c Collection) (Drafts, error) {
	if err := checkCollection(kind, c); err != nil {
		return d, err
	}
	switch c {
	case CollectionVitals:
		d.Vitals.Rows = appendCopy(d.Vitals.Rows, defaultVitalRow())
	case CollectionDiagnoses:
		d.Review.Diagnoses = appendCopy(d.Review.Diagnoses, defaultDiagnosisRow())
	case CollectionProcedures:
		d.Review.Procedures = appendCopy(d.Review.Procedures, ProcedureRow{})
	case CollectionLabRequests:
		d.Review.LabRequests = appendCopy(d.Review.LabRequests, defaultTestRequestRow())
	case CollectionRadiologyRequests:
		d.Review.RadiologyRequests = appendCopy(d.Review.RadiologyRequests, defaultTestRequestRow())
	case CollectionMedications:
		d.Review.Medications = appendCopy(d.Review.Medications, defaultMedicationRow())
	}
	return d, nil
}

// RemoveRow deletes the row at index. Removing the last vitals row leaves a
// single default row in its place.
func (d Drafts) RemoveRow(kind flowmodel.ActionKind, c Collection, index int) (Drafts, error) {
	if err := checkCollection(kind, c); err != nil {
		return d, err
	}
	var err error
	switch c {
	case CollectionVitals:
		d.Vitals.Rows, err = removeAt(d.Vitals.Rows, index)
		if err == nil && len(d.Vitals.Rows) == 0 {
			d.Vitals.Rows = []VitalRow{defaultVitalRow()}
		}
	case CollectionDiagnoses:
		d.Review.Diagnoses, err = removeAt(d.Review.Diagnoses, index)
	case CollectionProcedures:
		d.Review.Procedures, err = removeAt(d.Review.Procedures, index)
	case CollectionLabRequests:
		d.Review.LabRequests, err = removeAt(d.Review.LabRequests, index)
	case CollectionRadiologyRequests:
		d.Review.RadiologyRequests, err = removeAt(d.Review.RadiologyRequests, index)
	case CollectionMedications:
		d.Review.Medications, err = removeAt(d.Review.Medications, index)
	}
	return d, err
}

// SetRowField sets one field of the row at index.
func (d Drafts) SetRowField(kind flowmodel.ActionKind, c Collection, index int, name, value string) (Drafts, error) {
	if err := checkCollection(kind, c); err != nil {
		return d, err
	}
	var err error
	switch c {
	case CollectionVitals:
		d.Vitals.Rows, err = updateAt(d.Vitals.Rows, index, func(r *VitalRow) bool { return setVitalRowField(r, name, value) })
	case CollectionDiagnoses:
		d.Review.Diagnoses, err = updateAt(d.Review.Diagnoses, index, func(r *DiagnosisRow) bool {
			switch name {
			case "type":
				r.Type = value
			case "code":
				r.Code = value
			case "description":
				r.Description = value
			default:
				return false
			}
			return true
		})
	case CollectionProcedures:
		d.Review.Procedures, err = updateAt(d.Review.Procedures, index, func(r *ProcedureRow) bool {
			switch name {
			case "code":
				r.Code = value
			case "description":
				r.Description = value
			default:
				return false
			}
			return true
		})
	case CollectionLabRequests:
		d.Review.LabRequests, err = updateAt(d.Review.LabRequests, index, func(r *TestRequestRow) bool { return setTestRequestField(r, name, value) })
	case CollectionRadiologyRequests:
		d.Review.RadiologyRequests, err = updateAt(d.Review.RadiologyRequests, index, func(r *TestRequestRow) bool { return setTestRequestField(r, name, value) })
	case CollectionMedications:
		d.Review.Medications, err = updateAt(d.Review.Medications, index, func(r *MedicationRow) bool { return setMedicationField(r, name, value) })
	}
	if errors.Is(err, ErrUnknownField) {
		return d, fmt.Errorf("%w: %s[%d].%s", ErrUnknownField, c, index, name)
	}
	return d, err
}

func setVitalRowField(r *VitalRow, name, value string) bool {
	switch name {
	case "vitalType":
		old := r.VitalType
		r.VitalType = value
		if r.Unit == "" || r.Unit == defaultVitalUnits[old] {
			r.Unit = defaultVitalUnits[value]
		}
		if old == flowmodel.VitalBloodPressure && value != old {
			r.Value = ""
		}
	case "value":
		if r.VitalType == flowmodel.VitalBloodPressure {
			// Derived from systolic/diastolic.
			return true
		}
		r.Value = value
	case "unit":
		r.Unit = value
	case "systolic":
		r.Systolic = value
	case "diastolic":
		r.Diastolic = value
	case "meanArterialPressure":
		if strings.TrimSpace(value) == "" {
			r.MAPOverridden = false
		} else {
			r.MAPOverridden = true
			r.MeanArterialPressure = value
		}
	default:
		return false
	}
	*r = recomputeBloodPressure(*r)
	return true
}

func setTestRequestField(r *TestRequestRow, name, value string) bool {
	switch name {
	case "testId":
		r.TestID = value
	case "priority":
		r.Priority = value
	case "notes":
		r.Notes = value
	default:
		return false
	}
	return true
}

func setMedicationField(r *MedicationRow, name, value string) bool {
	switch name {
	case "drugId":
		r.DrugID = value
	case "quantity":
		r.Quantity = value
	case "frequency":
		r.Frequency = value
	case "route":
		r.Route = value
	case "durationDays":
		r.DurationDays = value
	case "instructions":
		r.Instructions = value
	default:
		return false
	}
	return true
}

func appendCopy[T any](rows []T, row T) []T {
	out := make([]T, len(rows), len(rows)+1)
	copy(out, rows)
	return append(out, row)
}

func removeAt[T any](rows []T, index int) ([]T, error) {
	if index < 0 || index >= len(rows) {
		return rows, fmt.Errorf("%w: %d", ErrRowIndex, index)
	}
	out := make([]T, 0, len(rows)-1)
	out = append(out, rows[:index]...)
	return append(out, rows[index+1:]...), nil
}

func updateAt[T any](rows []T, index int, set func(*T) bool) ([]T, error) {
	if index < 0 || index >= len(rows) {
		return rows, fmt.Errorf("%w: %d", ErrRowIndex, index)
	}
	out := make([]T, len(rows))
	copy(out, rows)
	if !set(&out[index]) {
		return rows, ErrUnknownField
	}
	return out, nil
}
