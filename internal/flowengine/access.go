package flowengine

import "github.com/ehr/opdflow/pkg/flowmodel"

// AccessDecision is the outcome of evaluating the caller's capabilities on
// entry.
type AccessDecision int

const (
	// AccessPending: resolution not complete; show loading, issue no queries.
	AccessPending AccessDecision = iota
	// AccessRedirect: no access capability and no usable scope.
	AccessRedirect
	AccessGranted
)

func (d AccessDecision) String() string {
	switch d {
	case AccessPending:
		return "pending"
	case AccessRedirect:
		return "redirect"
	case AccessGranted:
		return "granted"
	}
	return "unknown"
}

// EvaluateAccess is the entry guard for the engine.
func EvaluateAccess(caps flowmodel.Capabilities) AccessDecision {
	if !caps.Ready {
		return AccessPending
	}
	if !caps.CanAccess && !caps.HasScope() {
		return AccessRedirect
	}
	return AccessGranted
}

// ErrorKind groups backend error codes by how they are surfaced.
type ErrorKind string

const (
	ErrorKindNone        ErrorKind = ""
	ErrorKindAccess      ErrorKind = "access_denied"
	ErrorKindEntitlement ErrorKind = "entitlement_blocked"
	ErrorKindLoad        ErrorKind = "load_error"
)

// ClassifyErrorCode maps a backend code to its surfacing kind.
func ClassifyErrorCode(code string) ErrorKind {
	switch code {
	case "":
		return ErrorKindNone
	case flowmodel.CodeForbidden, flowmodel.CodeUnauthorized:
		return ErrorKindAccess
	case flowmodel.CodeModuleNotEntitled:
		return ErrorKindEntitlement
	}
	return ErrorKindLoad
}

// Panel is the top-level state the presentation layer renders.
type Panel string

const (
	PanelLoading            Panel = "loading"
	PanelRedirect           Panel = "redirect"
	PanelAccessDenied       Panel = "access_denied"
	PanelEntitlementBlocked Panel = "entitlement_blocked"
	PanelReady              Panel = "ready"
)
