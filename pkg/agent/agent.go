package agent

import (
	"context"

	"github.com/nstogner/deepresearch/pkg/domain"
)

// Output is one output item attached to an interaction. The Deep Research
// agent emits the report as the final text output.
type Output struct {
	Text string `json:"text"`
}

// Snapshot is the immutable result of one status fetch. Statistics are
// present iff outputs are present; Error is present iff the remote reported
// a failure.
type Snapshot struct {
	ID         string              `json:"id"`
	RawStatus  string              `json:"status"`
	State      domain.State        `json:"state"`
	Agent      string              `json:"agent,omitempty"`
	Outputs    []Output            `json:"outputs,omitempty"`
	Statistics *domain.Statistics  `json:"statistics,omitempty"`
	Error      *domain.RemoteError `json:"error,omitempty"`
}

// ReportText returns the most recent output's text, or false when the
// snapshot carries no outputs.
func (s *Snapshot) ReportText() (string, bool) {
	if len(s.Outputs) == 0 {
		return "", false
	}
	return s.Outputs[len(s.Outputs)-1].Text, true
}

// Gateway represents a service that runs background research interactions
// (e.g. the Gemini Deep Research agent).
type Gateway interface {
	// Start creates a background research interaction for the query and
	// returns its opaque id.
	Start(ctx context.Context, query string) (string, error)

	// GetStatus fetches the current state of an interaction. It performs no
	// polling or retries; transport failures propagate unchanged.
	GetStatus(ctx context.Context, interactionID string) (*Snapshot, error)
}
