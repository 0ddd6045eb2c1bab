package flowengine

import "github.com/ehr/opdflow/pkg/flowmodel"

// CanSubmitCurrentAction decides whether the submit control for the action
// of stage is enabled at all. Offline always disables it; otherwise the
// permission flag bound to the action decides. Validation is separate and
// only runs once a permitted submit is attempted.
func CanSubmitCurrentAction(caps flowmodel.Capabilities, stage flowmodel.Stage, offline bool) bool {
	if offline {
		return false
	}
	kind := ResolveAction(stage)
	if kind == flowmodel.ActionNone {
		return false
	}
	return caps.Allows(kind)
}

// CanStartVisit applies the same gate to opening a new visit.
func CanStartVisit(caps flowmodel.Capabilities, offline bool) bool {
	return !offline && caps.CanStart
}
