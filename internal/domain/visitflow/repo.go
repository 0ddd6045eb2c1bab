package visitflow

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the flow at version 1 together with its first event.
	Create(ctx context.Context, f *VisitFlow, ev *FlowEvent) error
	// GetByID returns ErrNotFound when no row matches.
	GetByID(ctx context.Context, id uuid.UUID) (*VisitFlow, error)
	// Update writes f if the stored version still equals expectedVersion,
	// bumps f.Version and appends ev. It returns ErrVersionConflict otherwise.
	Update(ctx context.Context, f *VisitFlow, expectedVersion int, ev *FlowEvent) error
	List(ctx context.Context, filter ListFilter) ([]*VisitFlow, int, error)
	Events(ctx context.Context, flowID uuid.UUID) ([]*FlowEvent, error)
}
