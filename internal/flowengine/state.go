package flowengine

import "github.com/ehr/opdflow/pkg/flowmodel"

type FormErrorKind string

const (
	FormErrorValidation FormErrorKind = "validation"
	FormErrorSubmission FormErrorKind = "submission"
)

// FormError is the single top-level error shown beside the action form.
type FormError struct {
	Kind    FormErrorKind `json:"kind" yaml:"kind"`
	Field   string        `json:"field,omitempty" yaml:"field,omitempty"`
	Code    string        `json:"code,omitempty" yaml:"code,omitempty"`
	Message string        `json:"message" yaml:"message"`
}

func (e *FormError) Error() string {
	return e.Message
}

// LoadError records a failed list or get.
type LoadError struct {
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// PendingMutation tags the in-flight mutation with the visit it targets.
type PendingMutation struct {
	Kind   flowmodel.ActionKind
	FlowID string
}

// State is everything the engine owns. Reduce never mutates a State in
// place: slices and maps are replaced, not written through.
type State struct {
	ListRoot    string
	LandingPath string

	Caps    flowmodel.Capabilities
	Access  AccessDecision
	Offline bool

	Filter     flowmodel.ListParams
	List       []flowmodel.FlowListEntry
	Pagination flowmodel.Pagination
	ListError  *LoadError

	SelectedID string
	// Snapshots caches every snapshot received, keyed by visit id. Only the
	// entry for SelectedID is ever presented.
	Snapshots map[string]*flowmodel.FlowSnapshot
	FlowError *LoadError

	DraftOwnerID string
	Drafts       Drafts
	FormError    *FormError
	Pending      *PendingMutation
}

func NewState(listRoot, landingPath string) State {
	if listRoot == "" {
		listRoot = DefaultListRoot
	}
	if landingPath == "" {
		landingPath = DefaultLandingPath
	}
	return State{
		ListRoot:    listRoot,
		LandingPath: landingPath,
		Snapshots:   map[string]*flowmodel.FlowSnapshot{},
		Drafts:      DefaultDrafts(),
	}
}

// Current returns the snapshot of the selected visit, if loaded.
func (s State) Current() *flowmodel.FlowSnapshot {
	if s.SelectedID == "" {
		return nil
	}
	return s.Snapshots[s.SelectedID]
}

// Stage is the normalized stage of the selected visit.
func (s State) Stage() flowmodel.Stage {
	cur := s.Current()
	if cur == nil {
		return flowmodel.StageUnknown
	}
	return flowmodel.ParseStage(string(cur.Stage))
}

// CurrentAction is the action required by the selected visit's stage.
func (s State) CurrentAction() flowmodel.ActionKind {
	return ResolveAction(s.Stage())
}

// Reduce applies ev to s and returns the next state plus the effects the
// shell must run.
func Reduce(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case Opened:
		s.SelectedID = e.SelectedID
		s.Filter = e.Filter
		return s, nil

	case CapabilitiesResolved:
		s.Caps = e.Caps
		s.Access = EvaluateAccess(e.Caps)
		switch s.Access {
		case AccessRedirect:
			return s, []Effect{NavigateTo{Path: s.LandingPath}}
		case AccessGranted:
			return s, s.fetchEffects()
		}
		return s, nil

	case ConnectivityChanged:
		s.Offline = e.Offline
		return s, nil

	case FilterChanged:
		if s.Access != AccessGranted {
			return s, nil
		}
		s.Filter = e.Filter
		s.SelectedID = ""
		s.ListError = nil
		return s, []Effect{
			NavigateTo{Path: ListPath(s.ListRoot, e.Filter)},
			FetchList{Params: e.Filter},
		}

	case VisitSelected:
		if s.Access != AccessGranted || e.ID == "" {
			return s, nil
		}
		s.SelectedID = e.ID
		s.FlowError = nil
		return s, []Effect{
			NavigateTo{Path: VisitPath(s.ListRoot, e.ID)},
			FetchFlow{ID: e.ID},
		}

	case RetryRequested:
		if s.Access != AccessGranted {
			return s, nil
		}
		s.ListError = nil
		s.FlowError = nil
		return s, s.fetchEffects()

	case ListLoaded:
		if e.Filter != s.Filter {
			return s, nil
		}
		s.List = mergeListItems(s.Snapshots, e.Result.Items)
		s.Pagination = e.Result.Pagination
		s.ListError = nil
		return s, nil

	case ListFailed:
		if e.Filter != s.Filter {
			return s, nil
		}
		s.ListError = &LoadError{Code: e.Code, Message: MessageForCode(e.Code), Detail: e.Message}
		return s, nil

	case FlowLoaded:
		return reconcileLoaded(s, e), nil

	case FlowFailed:
		if e.ID != s.SelectedID {
			return s, nil
		}
		s.FlowError = &LoadError{Code: e.Code, Message: MessageForCode(e.Code), Detail: e.Message}
		return s, nil

	case SubmitRequested:
		return submit(s)

	case StartRequested:
		return start(s)

	case MutationSucceeded:
		return reconcileMutation(s, e)

	case MutationFailed:
		if s.Pending == nil || s.Pending.Kind != e.Kind || s.Pending.FlowID != e.FlowID {
			return s, nil
		}
		s.Pending = nil
		s.FormError = &FormError{
			Kind:    FormErrorSubmission,
			Code:    e.Code,
			Message: MessageForCode(e.Code),
		}
		return s, nil

	case SetField, AddRow, RemoveRow, SetRowField:
		d, err := ApplyDraftEvent(s.Drafts, ev)
		if err != nil {
			return s, nil
		}
		s.Drafts = d
		s.FormError = nil
		return s, nil
	}
	return s, nil
}

func (s State) fetchEffects() []Effect {
	effects := []Effect{FetchList{Params: s.Filter}}
	if s.SelectedID != "" {
		effects = append(effects, FetchFlow{ID: s.SelectedID})
	}
	return effects
}

func submit(s State) (State, []Effect) {
	if s.Pending != nil || !CanSubmitCurrentAction(s.Caps, s.Stage(), s.Offline) {
		return s, nil
	}
	kind := s.CurrentAction()
	payload, err := ValidateDraft(kind, s.Drafts)
	if err != nil {
		s.FormError = formErrorFrom(err)
		return s, nil
	}
	s.FormError = nil
	s.Pending = &PendingMutation{Kind: kind, FlowID: s.SelectedID}
	return s, []Effect{SubmitTransition{Kind: kind, FlowID: s.SelectedID, Payload: payload}}
}

func start(s State) (State, []Effect) {
	if s.Pending != nil || s.Access != AccessGranted || !CanStartVisit(s.Caps, s.Offline) {
		return s, nil
	}
	payload, err := ValidateStart(s.Drafts.Start)
	if err != nil {
		s.FormError = formErrorFrom(err)
		return s, nil
	}
	s.FormError = nil
	s.Pending = &PendingMutation{Kind: flowmodel.ActionStartVisit}
	return s, []Effect{StartVisit{Payload: payload}}
}

func formErrorFrom(err error) *FormError {
	fe := &FormError{Kind: FormErrorValidation, Message: err.Error()}
	if ve, ok := err.(*ValidationError); ok {
		fe.Field = ve.Field
	}
	return fe
}
