package flowengine

import "github.com/ehr/opdflow/pkg/flowmodel"

// stageActions is the whole client-side state machine: stage -> required action.
// Terminal and unknown stages have no entry.
var stageActions = map[flowmodel.Stage]flowmodel.ActionKind{
	flowmodel.StageWaitingConsultationPayment: flowmodel.ActionPayConsultation,
	flowmodel.StageWaitingVitals:              flowmodel.ActionRecordVitals,
	flowmodel.StageWaitingDoctorAssignment:    flowmodel.ActionAssignDoctor,
	flowmodel.StageWaitingDoctorReview:        flowmodel.ActionDoctorReview,
	flowmodel.StageLabRequested:               flowmodel.ActionDisposition,
	flowmodel.StageRadiologyRequested:         flowmodel.ActionDisposition,
	flowmodel.StageLabAndRadiologyRequested:   flowmodel.ActionDisposition,
	flowmodel.StagePharmacyRequested:          flowmodel.ActionDisposition,
	flowmodel.StageWaitingDisposition:         flowmodel.ActionDisposition,
}

// ResolveAction returns the action required next for stage, or ActionNone
// for terminal and unrecognized stages.
func ResolveAction(stage flowmodel.Stage) flowmodel.ActionKind {
	return stageActions[flowmodel.ParseStage(string(stage))]
}

// IsTerminal reports whether stage ends the visit.
func IsTerminal(stage flowmodel.Stage) bool {
	return flowmodel.ParseStage(string(stage)).Terminal()
}
