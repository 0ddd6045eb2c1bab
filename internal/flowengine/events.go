package flowengine

import "github.com/ehr/opdflow/pkg/flowmodel"

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

// Opened records the route the engine was entered with.
type Opened struct {
	SelectedID string
	Filter     flowmodel.ListParams
}

// CapabilitiesResolved delivers the permission/scope resolution.
type CapabilitiesResolved struct {
	Caps flowmodel.Capabilities
}

// ConnectivityChanged carries the offline signal.
type ConnectivityChanged struct {
	Offline bool
}

// FilterChanged replaces the list filters.
type FilterChanged struct {
	Filter flowmodel.ListParams
}

// VisitSelected selects a visit from the list.
type VisitSelected struct {
	ID string
}

// RetryRequested re-issues the list and selected-visit fetches.
type RetryRequested struct{}

// SubmitRequested attempts the current stage's action for the selected visit.
type SubmitRequested struct{}

// StartRequested attempts to open a new visit from the start draft.
type StartRequested struct{}

type ListLoaded struct {
	Filter flowmodel.ListParams
	Result flowmodel.ListResult
}

type ListFailed struct {
	Filter  flowmodel.ListParams
	Code    string
	Message string
}

// FlowLoaded and FlowFailed are tagged with the visit id they were fetched for.
type FlowLoaded struct {
	ID       string
	Snapshot *flowmodel.FlowSnapshot
}

type FlowFailed struct {
	ID      string
	Code    string
	Message string
}

// MutationSucceeded and MutationFailed are tagged with the action and the
// visit id the request targeted (empty for start).
type MutationSucceeded struct {
	Kind     flowmodel.ActionKind
	FlowID   string
	Snapshot *flowmodel.FlowSnapshot
}

type MutationFailed struct {
	Kind    flowmodel.ActionKind
	FlowID  string
	Code    string
	Message string
}

// Draft events. Kind selects the draft in the arena.
type SetField struct {
	Kind  flowmodel.ActionKind
	Name  string
	Value string
}

type AddRow struct {
	Kind       flowmodel.ActionKind
	Collection Collection
}

type RemoveRow struct {
	Kind       flowmodel.ActionKind
	Collection Collection
	Index      int
}

type SetRowField struct {
	Kind       flowmodel.ActionKind
	Collection Collection
	Index      int
	Name       string
	Value      string
}

func (Opened) isEvent()               {}
func (CapabilitiesResolved) isEvent() {}
func (ConnectivityChanged) isEvent()  {}
func (FilterChanged) isEvent()        {}
func (VisitSelected) isEvent()        {}
func (RetryRequested) isEvent()       {}
func (SubmitRequested) isEvent()      {}
func (StartRequested) isEvent()       {}
func (ListLoaded) isEvent()           {}
func (ListFailed) isEvent()           {}
func (FlowLoaded) isEvent()           {}
func (FlowFailed) isEvent()           {}
func (MutationSucceeded) isEvent()    {}
func (MutationFailed) isEvent()       {}
func (SetField) isEvent()             {}
func (AddRow) isEvent()               {}
func (RemoveRow) isEvent()            {}
func (SetRowField) isEvent()          {}

// ApplyDraftEvent applies a draft event to the arena.
func ApplyDraftEvent(d Drafts, ev Event) (Drafts, error) {
	switch e := ev.(type) {
	case SetField:
		return d.SetField(e.Kind, e.Name, e.Value)
	case AddRow:
		return d.AddRow(e.Kind, e.Collection)
	case RemoveRow:
		return d.RemoveRow(e.Kind, e.Collection, e.Index)
	case SetRowField:
		return d.SetRowField(e.Kind, e.Collection, e.Index, e.Name, e.Value)
	}
	return d, ErrUnknownDraft
}
