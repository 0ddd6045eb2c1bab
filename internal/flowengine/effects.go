package flowengine

import "github.com/ehr/opdflow/pkg/flowmodel"

// Effect is a side effect requested by Reduce and interpreted by the shell.
type Effect interface {
	isEffect()
}

// NavigateTo asks the router to push Path.
type NavigateTo struct {
	Path string
}

// FetchList re-fetches the visit list.
type FetchList struct {
	Params flowmodel.ListParams
}

// FetchFlow re-fetches one visit snapshot.
type FetchFlow struct {
	ID string
}

// StartVisit issues the start call.
type StartVisit struct {
	Payload flowmodel.StartVisitPayload
}

// SubmitTransition issues one of the five stage actions against FlowID.
// Payload holds the sanitized payload type matching Kind.
type SubmitTransition struct {
	Kind    flowmodel.ActionKind
	FlowID  string
	Payload interface{}
}

func (NavigateTo) isEffect()       {}
func (FetchList) isEffect()        {}
func (FetchFlow) isEffect()        {}
func (StartVisit) isEffect()       {}
func (SubmitTransition) isEffect() {}
