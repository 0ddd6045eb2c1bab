package flowengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

var (
	ErrBusy         = errors.New("a submission is already in flight")
	ErrNotPermitted = errors.New("action not permitted")
	ErrNoBackend    = errors.New("flow engine requires a backend")
)

// Router accepts the paths the engine pushes.
type Router interface {
	Push(path string)
}

// Connectivity reports the offline signal.
type Connectivity interface {
	Offline() bool
}

// PermissionResolver resolves the caller's capabilities and scope.
type PermissionResolver interface {
	Resolve(ctx context.Context) (flowmodel.Capabilities, error)
}

type Options struct {
	Backend      Backend
	Router       Router
	Connectivity Connectivity
	Permissions  PermissionResolver
	ListRoot     string
	LandingPath  string
	Logger       zerolog.Logger
}

// Engine is the façade the presentation layer consumes. It owns a State,
// feeds events through Reduce and interprets the returned effects.
type Engine struct {
	adapter *FlowQueryAdapter
	router  Router
	conn    Connectivity
	perms   PermissionResolver
	log     zerolog.Logger

	mu     sync.Mutex
	state  State
	subs   map[int]func(View)
	nextID int
}

func New(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, ErrNoBackend
	}
	return &Engine{
		adapter: NewFlowQueryAdapter(opts.Backend),
		router:  opts.Router,
		conn:    opts.Connectivity,
		perms:   opts.Permissions,
		log:     opts.Logger,
		state:   NewState(opts.ListRoot, opts.LandingPath),
		subs:    map[int]func(View){},
	}, nil
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) View() View {
	return BuildView(e.State(), e.adapter)
}

// Adapter exposes the query adapter's loading and error state.
func (e *Engine) Adapter() *FlowQueryAdapter {
	return e.adapter
}

// Subscribe registers fn to receive the view after every state change.
func (e *Engine) Subscribe(fn func(View)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Dispatch reduces ev and runs the resulting effects until the cycle
// settles. List and visit fetches of one cycle run concurrently.
func (e *Engine) Dispatch(ctx context.Context, ev Event) {
	e.mu.Lock()
	next, effects := Reduce(e.state, ev)
	e.state = next
	subs := make([]func(View), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	if len(subs) > 0 {
		v := BuildView(next, e.adapter)
		for _, fn := range subs {
			fn(v)
		}
	}
	e.run(ctx, effects)
}

func (e *Engine) run(ctx context.Context, effects []Effect) {
	var wg sync.WaitGroup
	for _, eff := range effects {
		switch f := eff.(type) {
		case NavigateTo:
			e.log.Debug().Str("path", f.Path).Msg("navigate")
			if e.router != nil {
				e.router.Push(f.Path)
			}
		case FetchList:
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.fetchList(ctx, f.Params)
			}()
		case FetchFlow:
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.fetchFlow(ctx, f.ID)
			}()
		case StartVisit:
			e.startVisit(ctx, f)
		case SubmitTransition:
			e.submitTransition(ctx, f)
		}
	}
	wg.Wait()
}

func (e *Engine) fetchList(ctx context.Context, params flowmodel.ListParams) {
	res, fail := e.adapter.list(ctx, params)
	if fail != nil {
		e.log.Debug().Str("code", fail.Code).Msg("list failed")
		e.Dispatch(ctx, ListFailed{Filter: params, Code: fail.Code, Message: fail.Message})
		return
	}
	e.Dispatch(ctx, ListLoaded{Filter: params, Result: *res})
}

func (e *Engine) fetchFlow(ctx context.Context, id string) {
	snap, fail := e.adapter.get(ctx, id)
	if fail != nil {
		e.log.Debug().Str("flow_id", id).Str("code", fail.Code).Msg("get failed")
		e.Dispatch(ctx, FlowFailed{ID: id, Code: fail.Code, Message: fail.Message})
		return
	}
	e.Dispatch(ctx, FlowLoaded{ID: id, Snapshot: snap})
}

func (e *Engine) startVisit(ctx context.Context, f StartVisit) {
	snap, fail := e.adapter.start(ctx, f.Payload)
	if fail != nil {
		e.log.Debug().Str("code", fail.Code).Msg("start failed")
		e.Dispatch(ctx, MutationFailed{Kind: flowmodel.ActionStartVisit, Code: fail.Code, Message: fail.Message})
		return
	}
	e.log.Debug().Str("flow_id", snap.ID).Str("stage", string(snap.Stage)).Msg("visit started")
	e.Dispatch(ctx, MutationSucceeded{Kind: flowmodel.ActionStartVisit, Snapshot: snap})
}

func (e *Engine) submitTransition(ctx context.Context, f SubmitTransition) {
	snap, fail := e.adapter.transition(ctx, f.Kind, f.FlowID, f.Payload)
	if fail != nil {
		e.log.Debug().Str("flow_id", f.FlowID).Str("action", string(f.Kind)).Str("code", fail.Code).Msg("transition failed")
		e.Dispatch(ctx, MutationFailed{Kind: f.Kind, FlowID: f.FlowID, Code: fail.Code, Message: fail.Message})
		return
	}
	e.log.Debug().Str("flow_id", f.FlowID).Str("action", string(f.Kind)).Str("stage", string(snap.Stage)).Msg("transition applied")
	e.Dispatch(ctx, MutationSucceeded{Kind: f.Kind, FlowID: f.FlowID, Snapshot: snap})
}

// Open enters the engine at the given route, resolves capabilities and,
// once access is granted, loads the list and the selected visit.
func (e *Engine) Open(ctx context.Context, selectedID string, filter flowmodel.ListParams) error {
	e.SyncConnectivity(ctx)
	e.Dispatch(ctx, Opened{SelectedID: selectedID, Filter: filter})
	if e.perms == nil {
		return errors.New("flow engine requires a permission resolver")
	}
	caps, err := e.perms.Resolve(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("resolve capabilities")
		return fmt.Errorf("resolve capabilities: %w", err)
	}
	caps.Ready = true
	e.Dispatch(ctx, CapabilitiesResolved{Caps: caps})
	return nil
}

// OpenPath is Open with the selection and filters parsed from path.
func (e *Engine) OpenPath(ctx context.Context, path string) error {
	id, params := ParseRoute(e.State().ListRoot, path)
	return e.Open(ctx, id, params)
}

func (e *Engine) Select(ctx context.Context, id string) {
	e.Dispatch(ctx, VisitSelected{ID: id})
}

func (e *Engine) Filter(ctx context.Context, params flowmodel.ListParams) {
	e.Dispatch(ctx, FilterChanged{Filter: params})
}

func (e *Engine) Retry(ctx context.Context) {
	e.Dispatch(ctx, RetryRequested{})
}

// SyncConnectivity reads the connectivity signal into the state.
func (e *Engine) SyncConnectivity(ctx context.Context) {
	if e.conn == nil {
		return
	}
	offline := e.conn.Offline()
	if e.State().Offline != offline {
		e.Dispatch(ctx, ConnectivityChanged{Offline: offline})
	}
}

func (e *Engine) SetField(kind flowmodel.ActionKind, name, value string) error {
	return e.applyDraft(SetField{Kind: kind, Name: name, Value: value})
}

func (e *Engine) AddRow(kind flowmodel.ActionKind, c Collection) error {
	return e.applyDraft(AddRow{Kind: kind, Collection: c})
}

func (e *Engine) RemoveRow(kind flowmodel.ActionKind, c Collection, index int) error {
	return e.applyDraft(RemoveRow{Kind: kind, Collection: c, Index: index})
}

func (e *Engine) SetRowField(kind flowmodel.ActionKind, c Collection, index int, name, value string) error {
	return e.applyDraft(SetRowField{Kind: kind, Collection: c, Index: index, Name: name, Value: value})
}

func (e *Engine) applyDraft(ev Event) error {
	if _, err := ApplyDraftEvent(e.State().Drafts, ev); err != nil {
		return err
	}
	e.Dispatch(context.Background(), ev)
	return nil
}

// Submit runs the current stage's action for the selected visit. A
// validation or submission failure is returned as *FormError and also
// kept in the state.
func (e *Engine) Submit(ctx context.Context) error {
	st := e.State()
	if st.Pending != nil || e.adapter.Busy() {
		return ErrBusy
	}
	if !CanSubmitCurrentAction(st.Caps, st.Stage(), st.Offline) {
		return fmt.Errorf("%w: %s at stage %s", ErrNotPermitted, st.CurrentAction(), st.Stage())
	}
	e.Dispatch(ctx, SubmitRequested{})
	if fe := e.State().FormError; fe != nil {
		return fe
	}
	return nil
}

// Start opens a new visit from the start draft.
func (e *Engine) Start(ctx context.Context) error {
	st := e.State()
	if st.Pending != nil || e.adapter.Busy() {
		return ErrBusy
	}
	if st.Access != AccessGranted || !CanStartVisit(st.Caps, st.Offline) {
		return fmt.Errorf("%w: %s", ErrNotPermitted, flowmodel.ActionStartVisit)
	}
	e.Dispatch(ctx, StartRequested{})
	if fe := e.State().FormError; fe != nil {
		return fe
	}
	return nil
}
