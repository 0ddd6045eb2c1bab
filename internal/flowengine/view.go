package flowengine

import "github.com/ehr/opdflow/pkg/flowmodel"

// View is the derived, read-only projection rendered by the presentation
// layer.
type View struct {
	Panel      Panel                     `json:"panel" yaml:"panel"`
	Offline    bool                      `json:"offline" yaml:"offline"`
	List       []flowmodel.FlowListEntry `json:"list" yaml:"list"`
	Pagination flowmodel.Pagination      `json:"pagination" yaml:"pagination"`
	SelectedID string                    `json:"selectedId,omitempty" yaml:"selectedId,omitempty"`
	Flow       *flowmodel.FlowSnapshot   `json:"flow,omitempty" yaml:"flow,omitempty"`
	Stage      flowmodel.Stage           `json:"stage,omitempty" yaml:"stage,omitempty"`
	Action     flowmodel.ActionKind      `json:"action,omitempty" yaml:"action,omitempty"`
	Terminal   bool                      `json:"terminal" yaml:"terminal"`
	CanSubmit  bool                      `json:"canSubmit" yaml:"canSubmit"`
	CanStart   bool                      `json:"canStart" yaml:"canStart"`
	Busy       bool                      `json:"busy" yaml:"busy"`
	Loading    bool                      `json:"loading" yaml:"loading"`
	ListError  *LoadError                `json:"listError,omitempty" yaml:"listError,omitempty"`
	FlowError  *LoadError                `json:"flowError,omitempty" yaml:"flowError,omitempty"`
	FormError  *FormError                `json:"formError,omitempty" yaml:"formError,omitempty"`
	Drafts     Drafts                    `json:"drafts" yaml:"drafts"`
}

// BuildView derives the view from s. a may be nil.
func BuildView(s State, a *FlowQueryAdapter) View {
	v := View{
		Panel:      panelFor(s),
		Offline:    s.Offline,
		List:       s.List,
		Pagination: s.Pagination,
		SelectedID: s.SelectedID,
		Flow:       s.Current(),
		ListError:  s.ListError,
		FlowError:  s.FlowError,
		FormError:  s.FormError,
		Drafts:     s.Drafts,
		Busy:       s.Pending != nil,
		CanStart:   s.Access == AccessGranted && CanStartVisit(s.Caps, s.Offline),
	}
	if v.Flow != nil {
		v.Stage = s.Stage()
		v.Action = s.CurrentAction()
		v.Terminal = IsTerminal(v.Stage)
		v.CanSubmit = CanSubmitCurrentAction(s.Caps, v.Stage, s.Offline)
	}
	if a != nil {
		v.Busy = v.Busy || a.Busy()
		v.Loading = a.Loading(OpList) || a.Loading(OpGet)
	}
	return v
}

func panelFor(s State) Panel {
	switch s.Access {
	case AccessPending:
		return PanelLoading
	case AccessRedirect:
		return PanelRedirect
	}
	for _, le := range []*LoadError{s.ListError, s.FlowError} {
		if le == nil {
			continue
		}
		switch ClassifyErrorCode(le.Code) {
		case ErrorKindEntitlement:
			return PanelEntitlementBlocked
		case ErrorKindAccess:
			return PanelAccessDenied
		}
	}
	return PanelReady
}
