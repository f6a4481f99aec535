package store

import (
	"context"
	"time"

	"github.com/nstogner/deepresearch/pkg/domain"
)

// Run is one locally recorded research run. The run outlives the process
// that started it: the history is what lets status/fetch-results work from
// a fresh invocation without the user keeping interaction ids around.
type Run struct {
	ID            string       `json:"id"`
	InteractionID string       `json:"interaction_id"`
	Query         string       `json:"query"`
	Agent         string       `json:"agent"`
	State         domain.State `json:"state"`
	ReportPath    string       `json:"report_path"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// RunStore manages the persistence of research run history.
type RunStore interface {
	// Create persists a new run. The ID field must be set by the caller.
	Create(ctx context.Context, run *Run) error

	// GetByInteraction retrieves a run by its remote interaction id.
	// Returns an error if no such run is recorded.
	GetByInteraction(ctx context.Context, interactionID string) (*Run, error)

	// List returns runs ordered by creation time descending. If limit > 0,
	// returns at most that many.
	List(ctx context.Context, limit int) ([]Run, error)

	// SetState records the most recently observed state for a run.
	SetState(ctx context.Context, interactionID string, state domain.State) error

	// Close releases underlying resources.
	Close() error
}
