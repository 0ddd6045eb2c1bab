package flowmodel

// Stage is the backend-assigned phase of an outpatient visit.
type Stage string

// Visit stages. ADMITTED and DISCHARGED are terminal.
const (
	StageWaitingConsultationPayment Stage = "WAITING_CONSULTATION_PAYMENT"
	StageWaitingVitals              Stage = "WAITING_VITALS"
	StageWaitingDoctorAssignment    Stage = "WAITING_DOCTOR_ASSIGNMENT"
	StageWaitingDoctorReview        Stage = "WAITING_DOCTOR_REVIEW"
	StageLabRequested               Stage = "LAB_REQUESTED"
	StageRadiologyRequested         Stage = "RADIOLOGY_REQUESTED"
	StageLabAndRadiologyRequested   Stage = "LAB_AND_RADIOLOGY_REQUESTED"
	StagePharmacyRequested          Stage = "PHARMACY_REQUESTED"
	StageWaitingDisposition         Stage = "WAITING_DISPOSITION"
	StageAdmitted                   Stage = "ADMITTED"
	StageDischarged                 Stage = "DISCHARGED"
	StageUnknown                    Stage = "UNKNOWN"
)

var knownStages = map[Stage]bool{
	StageWaitingConsultationPayment: true,
	StageWaitingVitals:              true,
	StageWaitingDoctorAssignment:    true,
	StageWaitingDoctorReview:        true,
	StageLabRequested:               true,
	StageRadiologyRequested:         true,
	StageLabAndRadiologyRequested:   true,
	StagePharmacyRequested:          true,
	StageWaitingDisposition:         true,
	StageAdmitted:                   true,
	StageDischarged:                 true,
}

// ParseStage normalizes a raw stage value. Missing or unrecognized values
// become StageUnknown.
func ParseStage(raw string) Stage {
	s := Stage(raw)
	if knownStages[s] {
		return s
	}
	return StageUnknown
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool { return knownStages[s] }

// Terminal reports whether no further action is offered in s.
func (s Stage) Terminal() bool {
	return s == StageAdmitted || s == StageDischarged
}

// ActionKind is the single client-side operation legal for a stage.
type ActionKind string

const (
	ActionNone            ActionKind = ""
	ActionStartVisit      ActionKind = "START_VISIT"
	ActionPayConsultation ActionKind = "PAY_CONSULTATION"
	ActionRecordVitals    ActionKind = "RECORD_VITALS"
	ActionAssignDoctor    ActionKind = "ASSIGN_DOCTOR"
	ActionDoctorReview    ActionKind = "DOCTOR_REVIEW"
	ActionDisposition     ActionKind = "DISPOSITION"
)

// TransitionActions lists the five stage-advancing actions in visit order.
var TransitionActions = []ActionKind{
	ActionPayConsultation,
	ActionRecordVitals,
	ActionAssignDoctor,
	ActionDoctorReview,
	ActionDisposition,
}

// Arrival modes for starting a visit.
const (
	ArrivalWalkIn            = "WALK_IN"
	ArrivalOnlineAppointment = "ONLINE_APPOINTMENT"
	ArrivalEmergency         = "EMERGENCY"
)

// Disposition decisions.
const (
	DecisionAdmit          = "ADMIT"
	DecisionSendToPharmacy = "SEND_TO_PHARMACY"
	DecisionDischarge      = "DISCHARGE"
)

// Vital sign types. VitalBloodPressure rows carry systolic/diastolic/MAP.
const (
	VitalBloodPressure    = "BLOOD_PRESSURE"
	VitalHeartRate        = "HEART_RATE"
	VitalTemperature      = "TEMPERATURE"
	VitalRespiratoryRate  = "RESPIRATORY_RATE"
	VitalOxygenSaturation = "OXYGEN_SATURATION"
	VitalWeight           = "WEIGHT"
	VitalHeight           = "HEIGHT"
)

// Sub-record statuses for care plans, alerts, referrals and follow-ups.
const (
	RecordStatusActive    = "ACTIVE"
	RecordStatusPending   = "PENDING"
	RecordStatusCompleted = "COMPLETED"
	RecordStatusCancelled = "CANCELLED"
)
