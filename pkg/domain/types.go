package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// State is the lifecycle state of a research interaction, derived from the
// vendor's raw status token.
type State string

const (
	StateProcessing State = "PROCESSING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
	StateCancelled  State = "CANCELLED"
)

// MapStatus normalizes a vendor status token to a State. Recognized tokens
// map to the closed enumeration; anything else is passed through uppercased
// so the raw value still surfaces to the user. Unrecognized tokens are
// treated as non-terminal.
func MapStatus(raw string) State {
	switch strings.ToLower(raw) {
	case "in_progress":
		return StateProcessing
	case "completed":
		return StateCompleted
	case "failed":
		return StateFailed
	case "cancelled":
		return StateCancelled
	default:
		return State(strings.ToUpper(raw))
	}
}

// Terminal reports whether polling should stop at this state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// ResearchRequest describes one research task to start. Immutable once built.
type ResearchRequest struct {
	Query        string        `json:"query"`
	PollInterval time.Duration `json:"poll_interval"`
}

// DefaultPollInterval is used when a request does not specify one.
const DefaultPollInterval = 10 * time.Second

// MinPollInterval is the floor for the inter-poll wait.
const MinPollInterval = time.Second

// Statistics summarizes a completed research report.
type Statistics struct {
	Agent     string `json:"agent"`
	WordCount int    `json:"word_count"`
	CharCount int    `json:"char_count"`
	LineCount int    `json:"line_count"`
}

// ComputeStatistics derives report statistics from text: words are
// whitespace-delimited tokens, chars are runes, lines are newline-delimited
// segments.
func ComputeStatistics(agent, text string) *Statistics {
	return &Statistics{
		Agent:     agent,
		WordCount: len(strings.Fields(text)),
		CharCount: utf8.RuneCountInString(text),
		LineCount: len(strings.Split(text, "\n")),
	}
}

// ResearchResult is produced once, when a completed report is persisted.
type ResearchResult struct {
	ReportPath string        `json:"report_path"`
	Statistics *Statistics   `json:"statistics,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// InteractionStatus is a point-in-time snapshot of a research interaction.
// Statistics are present iff the response carried output text; error fields
// are present iff the state is FAILED.
type InteractionStatus struct {
	InteractionID string      `json:"interaction_id"`
	State         State       `json:"state"`
	RawStatus     string      `json:"raw_status,omitempty"`
	Statistics    *Statistics `json:"statistics,omitempty"`
	ErrorCode     string      `json:"error_code,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
}

// Completed reports whether the research finished successfully.
func (s *InteractionStatus) Completed() bool { return s.State == StateCompleted }

// Failed reports whether the research failed remotely.
func (s *InteractionStatus) Failed() bool { return s.State == StateFailed }

// Processing reports whether the research is still running.
func (s *InteractionStatus) Processing() bool { return s.State == StateProcessing }
