package flowmodel

// InlinePatient registers a new patient as part of starting a visit.
type InlinePatient struct {
	FirstName string `json:"firstName" yaml:"firstName"`
	LastName  string `json:"lastName" yaml:"lastName"`
}

// EmergencyDetails is sent only when the arrival mode is EMERGENCY.
type EmergencyDetails struct {
	Severity    string `json:"severity,omitempty" yaml:"severity,omitempty"`
	TriageLevel string `json:"triageLevel,omitempty" yaml:"triageLevel,omitempty"`
	Notes       string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// StartVisitPayload opens a new visit flow.
type StartVisitPayload struct {
	ArrivalMode     string            `json:"arrivalMode" yaml:"arrivalMode"`
	PatientID       string            `json:"patientId,omitempty" yaml:"patientId,omitempty"`
	AppointmentID   string            `json:"appointmentId,omitempty" yaml:"appointmentId,omitempty"`
	Patient         *InlinePatient    `json:"patient,omitempty" yaml:"patient,omitempty"`
	ProviderID      string            `json:"providerId,omitempty" yaml:"providerId,omitempty"`
	ConsultationFee string            `json:"consultationFee,omitempty" yaml:"consultationFee,omitempty"`
	Currency        string            `json:"currency,omitempty" yaml:"currency,omitempty"`
	Payment         *PaymentPayload   `json:"payment,omitempty" yaml:"payment,omitempty"`
	Emergency       *EmergencyDetails `json:"emergency,omitempty" yaml:"emergency,omitempty"`
}

// PaymentPayload settles the consultation fee. Amount is passed through as
// entered; the backend parses it.
type PaymentPayload struct {
	Method         string `json:"method" yaml:"method"`
	Amount         string `json:"amount,omitempty" yaml:"amount,omitempty"`
	Currency       string `json:"currency,omitempty" yaml:"currency,omitempty"`
	TransactionRef string `json:"transactionRef,omitempty" yaml:"transactionRef,omitempty"`
	Notes          string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// VitalSign is one recorded measurement.
type VitalSign struct {
	VitalType            string `json:"vitalType" yaml:"vitalType"`
	Value                string `json:"value" yaml:"value"`
	Unit                 string `json:"unit,omitempty" yaml:"unit,omitempty"`
	Systolic             *int   `json:"systolic,omitempty" yaml:"systolic,omitempty"`
	Diastolic            *int   `json:"diastolic,omitempty" yaml:"diastolic,omitempty"`
	MeanArterialPressure *int   `json:"meanArterialPressure,omitempty" yaml:"meanArterialPressure,omitempty"`
}

// VitalsPayload records vitals and triage.
type VitalsPayload struct {
	Vitals      []VitalSign `json:"vitals" yaml:"vitals"`
	TriageLevel string      `json:"triageLevel,omitempty" yaml:"triageLevel,omitempty"`
	TriageNotes string      `json:"triageNotes,omitempty" yaml:"triageNotes,omitempty"`
}

// AssignDoctorPayload assigns the reviewing provider.
type AssignDoctorPayload struct {
	ProviderID string `json:"providerId" yaml:"providerId"`
}

// Diagnosis is one coded or free-text diagnosis.
type Diagnosis struct {
	Type        string `json:"type" yaml:"type"`
	Code        string `json:"code,omitempty" yaml:"code,omitempty"`
	Description string `json:"description" yaml:"description"`
}

// Procedure is one performed or planned procedure.
type Procedure struct {
	Code        string `json:"code,omitempty" yaml:"code,omitempty"`
	Description string `json:"description" yaml:"description"`
}

// TestRequest orders a lab or radiology test.
type TestRequest struct {
	TestID   string `json:"testId" yaml:"testId"`
	Priority string `json:"priority,omitempty" yaml:"priority,omitempty"`
	Notes    string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Medication is one prescription line.
type Medication struct {
	DrugID       string  `json:"drugId" yaml:"drugId"`
	Quantity     float64 `json:"quantity" yaml:"quantity"`
	Frequency    string  `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	Route        string  `json:"route,omitempty" yaml:"route,omitempty"`
	DurationDays string  `json:"durationDays,omitempty" yaml:"durationDays,omitempty"`
	Instructions string  `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

// DoctorReviewPayload carries the consultation outcome.
type DoctorReviewPayload struct {
	Note              string        `json:"note" yaml:"note"`
	Diagnoses         []Diagnosis   `json:"diagnoses" yaml:"diagnoses"`
	Procedures        []Procedure   `json:"procedures" yaml:"procedures"`
	LabRequests       []TestRequest `json:"labRequests" yaml:"labRequests"`
	RadiologyRequests []TestRequest `json:"radiologyRequests" yaml:"radiologyRequests"`
	Medications       []Medication  `json:"medications" yaml:"medications"`
}

// DispositionPayload closes out or redirects the visit.
type DispositionPayload struct {
	Decision            string `json:"decision" yaml:"decision"`
	AdmissionFacilityID string `json:"admissionFacilityId,omitempty" yaml:"admissionFacilityId,omitempty"`
	Notes               string `json:"notes,omitempty" yaml:"notes,omitempty"`
}
