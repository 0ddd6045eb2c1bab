package flowengine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

// Backend is the query/action collaborator for the visit resource.
type Backend interface {
	List(ctx context.Context, params flowmodel.ListParams) (flowmodel.ListResult, error)
	Get(ctx context.Context, id string) (*flowmodel.FlowSnapshot, error)
	Start(ctx context.Context, p flowmodel.StartVisitPayload) (*flowmodel.FlowSnapshot, error)
	PayConsultation(ctx context.Context, id string, p flowmodel.PaymentPayload) (*flowmodel.FlowSnapshot, error)
	RecordVitals(ctx context.Context, id string, p flowmodel.VitalsPayload) (*flowmodel.FlowSnapshot, error)
	AssignDoctor(ctx context.Context, id string, p flowmodel.AssignDoctorPayload) (*flowmodel.FlowSnapshot, error)
	DoctorReview(ctx context.Context, id string, p flowmodel.DoctorReviewPayload) (*flowmodel.FlowSnapshot, error)
	Disposition(ctx context.Context, id string, p flowmodel.DispositionPayload) (*flowmodel.FlowSnapshot, error)
}

// Op groups adapter calls for loading state.
type Op string

const (
	OpList     Op = "list"
	OpGet      Op = "get"
	OpMutation Op = "mutation"
)

var errPayloadMismatch = errors.New("payload does not match action")

// Failure is the out-of-band error of the last failed call.
type Failure struct {
	Op      Op
	Code    string
	Message string
}

// FlowQueryAdapter wraps a Backend. Calls return nil on failure and record
// the error code instead of returning an error.
type FlowQueryAdapter struct {
	backend Backend

	mu      sync.Mutex
	loading map[Op]int
	last    *Failure
}

func NewFlowQueryAdapter(b Backend) *FlowQueryAdapter {
	return &FlowQueryAdapter{backend: b, loading: map[Op]int{}}
}

// List returns nil on failure; the code is available from LastFailure.
func (a *FlowQueryAdapter) List(ctx context.Context, params flowmodel.ListParams) *flowmodel.ListResult {
	res, _ := a.list(ctx, params)
	return res
}

func (a *FlowQueryAdapter) Get(ctx context.Context, id string) *flowmodel.FlowSnapshot {
	snap, _ := a.get(ctx, id)
	return snap
}

func (a *FlowQueryAdapter) Start(ctx context.Context, p flowmodel.StartVisitPayload) *flowmodel.FlowSnapshot {
	snap, _ := a.start(ctx, p)
	return snap
}

// Transition issues the stage action kind against id. payload must be the
// sanitized payload type for kind.
func (a *FlowQueryAdapter) Transition(ctx context.Context, kind flowmodel.ActionKind, id string, payload interface{}) *flowmodel.FlowSnapshot {
	snap, _ := a.transition(ctx, kind, id, payload)
	return snap
}

// Loading reports whether a call of op is in flight.
func (a *FlowQueryAdapter) Loading(op Op) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading[op] > 0
}

// Busy is true while a start or transition is in flight.
func (a *FlowQueryAdapter) Busy() bool {
	return a.Loading(OpMutation)
}

// LastFailure returns the failure of the most recent failed call, or nil
// when the most recent call succeeded.
func (a *FlowQueryAdapter) LastFailure() *Failure {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return nil
	}
	f := *a.last
	return &f
}

// ErrorCode is the code of LastFailure, or "".
func (a *FlowQueryAdapter) ErrorCode() string {
	if f := a.LastFailure(); f != nil {
		return f.Code
	}
	return ""
}

func (a *FlowQueryAdapter) list(ctx context.Context, params flowmodel.ListParams) (*flowmodel.ListResult, *Failure) {
	a.begin(OpList)
	res, err := a.backend.List(ctx, params)
	if err != nil {
		return nil, a.fail(OpList, err)
	}
	a.succeed(OpList)
	return &res, nil
}

func (a *FlowQueryAdapter) get(ctx context.Context, id string) (*flowmodel.FlowSnapshot, *Failure) {
	a.begin(OpGet)
	return a.finish(OpGet, func() (*flowmodel.FlowSnapshot, error) { return a.backend.Get(ctx, id) })
}

func (a *FlowQueryAdapter) start(ctx context.Context, p flowmodel.StartVisitPayload) (*flowmodel.FlowSnapshot, *Failure) {
	a.begin(OpMutation)
	return a.finish(OpMutation, func() (*flowmodel.FlowSnapshot, error) { return a.backend.Start(ctx, p) })
}

func (a *FlowQueryAdapter) transition(ctx context.Context, kind flowmodel.ActionKind, id string, payload interface{}) (*flowmodel.FlowSnapshot, *Failure) {
	a.begin(OpMutation)
	return a.finish(OpMutation, func() (*flowmodel.FlowSnapshot, error) {
		return a.dispatch(ctx, kind, id, payload)
	})
}

func (a *FlowQueryAdapter) dispatch(ctx context.Context, kind flowmodel.ActionKind, id string, payload interface{}) (*flowmodel.FlowSnapshot, error) {
	switch p := payload.(type) {
	case flowmodel.PaymentPayload:
		if kind == flowmodel.ActionPayConsultation {
			return a.backend.PayConsultation(ctx, id, p)
		}
	case flowmodel.VitalsPayload:
		if kind == flowmodel.ActionRecordVitals {
			return a.backend.RecordVitals(ctx, id, p)
		}
	case flowmodel.AssignDoctorPayload:
		if kind == flowmodel.ActionAssignDoctor {
			return a.backend.AssignDoctor(ctx, id, p)
		}
	case flowmodel.DoctorReviewPayload:
		if kind == flowmodel.ActionDoctorReview {
			return a.backend.DoctorReview(ctx, id, p)
		}
	case flowmodel.DispositionPayload:
		if kind == flowmodel.ActionDisposition {
			return a.backend.Disposition(ctx, id, p)
		}
	}
	return nil, fmt.Errorf("%w: %s with %T", errPayloadMismatch, kind, payload)
}

func (a *FlowQueryAdapter) finish(op Op, call func() (*flowmodel.FlowSnapshot, error)) (*flowmodel.FlowSnapshot, *Failure) {
	snap, err := call()
	if err == nil && snap == nil {
		err = &flowmodel.APIError{Code: flowmodel.CodeRequestFailed, Message: "empty response"}
	}
	if err != nil {
		return nil, a.fail(op, err)
	}
	a.succeed(op)
	return snap, nil
}

func (a *FlowQueryAdapter) begin(op Op) {
	a.mu.Lock()
	a.loading[op]++
	a.mu.Unlock()
}

func (a *FlowQueryAdapter) succeed(op Op) {
	a.mu.Lock()
	a.loading[op]--
	a.last = nil
	a.mu.Unlock()
}

func (a *FlowQueryAdapter) fail(op Op, err error) *Failure {
	f := &Failure{Op: op, Code: ErrorCode(err), Message: err.Error()}
	a.mu.Lock()
	a.loading[op]--
	a.last = f
	a.mu.Unlock()
	return f
}

// ErrorCode maps a backend error onto an error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *flowmodel.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code != "" {
			return apiErr.Code
		}
		return codeForStatus(apiErr.Status)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return flowmodel.CodeNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return flowmodel.CodeNetwork
	}
	return flowmodel.CodeRequestFailed
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return flowmodel.CodeUnauthorized
	case http.StatusForbidden:
		return flowmodel.CodeForbidden
	case http.StatusNotFound:
		return flowmodel.CodeNotFound
	case http.StatusConflict:
		return flowmodel.CodeStageConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return flowmodel.CodeValidation
	}
	return flowmodel.CodeRequestFailed
}
