package visitflow

import (
	"errors"
	"fmt"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

var (
	ErrNotFound        = errors.New("visit flow not found")
	ErrStageConflict   = errors.New("stage conflict")
	ErrVersionConflict = errors.New("visit flow was modified concurrently")
)

// ValidationError reports a rejected payload field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// stageConflict wraps ErrStageConflict with the offending stage and action.
func stageConflict(stage flowmodel.Stage, action flowmodel.ActionKind) error {
	return fmt.Errorf("%w: %s is not allowed in stage %s", ErrStageConflict, action, stage)
}
