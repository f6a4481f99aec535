package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingAPIKey indicates the GEMINI_API_KEY credential is absent. It is
// reported before any remote call is attempted.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY environment variable not set")

// ErrNoOutputs indicates the remote reported a completed interaction that
// carried no output text.
var ErrNoOutputs = errors.New("no outputs available")

// NotCompletedError indicates results were requested before the interaction
// reached COMPLETED. It is informational, not a defect: the caller can try
// again later.
type NotCompletedError struct {
	State State
}

func (e *NotCompletedError) Error() string {
	return fmt.Sprintf("research is not yet completed (current state: %s)", e.State)
}

// PollTimeoutError indicates the local poll-attempt cap was reached while the
// interaction was still running. The remote task is left running.
type PollTimeoutError struct {
	Attempts int
	Interval time.Duration
	State    State
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("research polling timed out after %d attempts (%s); current state: %s",
		e.Attempts, time.Duration(e.Attempts)*e.Interval, e.State)
}

// RemoteError carries the code and message of a remotely failed interaction.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("research failed remotely: %s: %s", e.Code, e.Message)
}
