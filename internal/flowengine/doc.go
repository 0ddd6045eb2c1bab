// Package flowengine drives an outpatient visit through its stages from the
// client side. It never computes stage transitions itself: it maps the stage
// of the most recent backend snapshot to the single action that is legal,
// holds one editable draft per action kind, validates drafts at submit time,
// gates submission on permissions and connectivity, and reconciles the
// snapshot returned by every successful mutation.
//
// State changes go through a pure reducer:
//
//	next, effects := Reduce(state, event)
//
// Effects (navigation, fetches, mutations) are interpreted by Engine, which
// feeds their results back in as further events.
package flowengine
