package flowengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

func TestResolveAction(t *testing.T) {
	tests := []struct {
		stage flowmodel.Stage
		want  flowmodel.ActionKind
	}{
		{flowmodel.StageWaitingConsultationPayment, flowmodel.ActionPayConsultation},
		{flowmodel.StageWaitingVitals, flowmodel.ActionRecordVitals},
		{flowmodel.StageWaitingDoctorAssignment, flowmodel.ActionAssignDoctor},
		{flowmodel.StageWaitingDoctorReview, flowmodel.ActionDoctorReview},
		{flowmodel.StageLabRequested, flowmodel.ActionDisposition},
		{flowmodel.StageRadiologyRequested, flowmodel.ActionDisposition},
		{flowmodel.StageLabAndRadiologyRequested, flowmodel.ActionDisposition},
		{flowmodel.StagePharmacyRequested, flowmodel.ActionDisposition},
		{flowmodel.StageWaitingDisposition, flowmodel.ActionDisposition},
		{flowmodel.StageAdmitted, flowmodel.ActionNone},
		{flowmodel.StageDischarged, flowmodel.ActionNone},
		{flowmodel.Stage("TELEPORTED"), flowmodel.ActionNone},
		{flowmodel.Stage(""), flowmodel.ActionNone},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveAction(tt.stage))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(flowmodel.StageAdmitted))
	assert.True(t, IsTerminal(flowmodel.StageDischarged))
	assert.False(t, IsTerminal(flowmodel.StageWaitingVitals))
	assert.False(t, IsTerminal(flowmodel.Stage("nonsense")))
}

func TestCanSubmitCurrentAction_OfflineAlwaysFalse(t *testing.T) {
	all := flowmodel.Capabilities{
		Ready: true, CanAccess: true, CanStart: true, CanPayConsultation: true,
		CanRecordVitals: true, CanAssignDoctor: true, CanDoctorReview: true, CanDisposition: true,
	}
	for stage := range stageActions {
		assert.False(t, CanSubmitCurrentAction(all, stage, true), stage)
		assert.True(t, CanSubmitCurrentAction(all, stage, false), stage)
	}
	assert.False(t, CanStartVisit(all, true))
	assert.True(t, CanStartVisit(all, false))
}

func TestCanSubmitCurrentAction_PermissionBound(t *testing.T) {
	caps := flowmodel.Capabilities{Ready: true, CanAccess: true, CanRecordVitals: true}
	assert.True(t, CanSubmitCurrentAction(caps, flowmodel.StageWaitingVitals, false))
	assert.False(t, CanSubmitCurrentAction(caps, flowmodel.StageWaitingDoctorReview, false))
	assert.False(t, CanSubmitCurrentAction(caps, flowmodel.StageDischarged, false))
}

func TestEvaluateAccess(t *testing.T) {
	assert.Equal(t, AccessPending, EvaluateAccess(flowmodel.Capabilities{CanAccess: true}))
	assert.Equal(t, AccessRedirect, EvaluateAccess(flowmodel.Capabilities{Ready: true}))
	assert.Equal(t, AccessGranted, EvaluateAccess(flowmodel.Capabilities{Ready: true, CanAccess: true}))
	assert.Equal(t, AccessGranted, EvaluateAccess(flowmodel.Capabilities{Ready: true, TenantID: "acme"}))
}

func TestClassifyErrorCode(t *testing.T) {
	assert.Equal(t, ErrorKindAccess, ClassifyErrorCode(flowmodel.CodeForbidden))
	assert.Equal(t, ErrorKindAccess, ClassifyErrorCode(flowmodel.CodeUnauthorized))
	assert.Equal(t, ErrorKindEntitlement, ClassifyErrorCode(flowmodel.CodeModuleNotEntitled))
	assert.Equal(t, ErrorKindLoad, ClassifyErrorCode(flowmodel.CodeStageConflict))
	assert.Equal(t, ErrorKindNone, ClassifyErrorCode(""))
}

func TestMessageForCode_Fallback(t *testing.T) {
	assert.Equal(t, genericErrorMessage, MessageForCode("SOMETHING_NEW"))
	assert.NotEqual(t, genericErrorMessage, MessageForCode(flowmodel.CodeStageConflict))
}
