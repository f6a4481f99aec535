// Package research orchestrates one research task end to end: start it on
// the remote agent, poll until a terminal state, persist the report.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/deepresearch/pkg/agent"
	"github.com/nstogner/deepresearch/pkg/domain"
	"github.com/nstogner/deepresearch/pkg/store"
)

// ProgressFunc is invoked synchronously on each non-terminal poll tick with
// the observed state and the elapsed time since polling began.
type ProgressFunc func(state domain.State, elapsed time.Duration)

// Service drives research tasks against a Gateway. Runs are recorded in the
// history store when one is supplied; history failures degrade to warnings
// and never block research.
type Service struct {
	gateway   agent.Gateway
	runs      store.RunStore
	agentName string
	outputDir string
}

// New creates a Service. runs may be nil to disable history.
func New(gateway agent.Gateway, runs store.RunStore, agentName, outputDir string) *Service {
	return &Service{
		gateway:   gateway,
		runs:      runs,
		agentName: agentName,
		outputDir: outputDir,
	}
}

// StartResearch starts a background research task and records it in history.
// reportPath is where the caller intends to persist the report; it is
// assigned before the remote task starts so it stays stable even if this
// process is interrupted.
func (s *Service) StartResearch(ctx context.Context, req domain.ResearchRequest, reportPath string) (string, error) {
	if strings.TrimSpace(req.Query) == "" {
		return "", fmt.Errorf("query must not be empty")
	}

	interactionID, err := s.gateway.Start(ctx, req.Query)
	if err != nil {
		return "", err
	}

	s.recordRun(ctx, &store.Run{
		ID:            uuid.New().String(),
		InteractionID: interactionID,
		Query:         req.Query,
		Agent:         s.agentName,
		State:         domain.StateProcessing,
		ReportPath:    reportPath,
	})
	return interactionID, nil
}

// PollUntilComplete fetches the interaction state every interval until a
// terminal state is observed. On each non-terminal tick it invokes onUpdate
// (when supplied) before waiting. If maxAttempts > 0 and that many polls have
// observed a non-terminal state, a PollTimeoutError is returned; the remote
// task keeps running either way. Transport failures propagate unchanged.
func (s *Service) PollUntilComplete(
	ctx context.Context,
	interactionID string,
	interval time.Duration,
	onUpdate ProgressFunc,
	maxAttempts int,
) (*agent.Snapshot, error) {
	if interval <= 0 {
		interval = domain.DefaultPollInterval
	}
	slog.Debug("polling interaction", "interactionID", interactionID, "interval", interval)

	start := time.Now()
	attempts := 0

	for {
		snap, err := s.gateway.GetStatus(ctx, interactionID)
		if err != nil {
			return nil, err
		}

		attempts++
		elapsed := time.Since(start)
		slog.Debug("poll tick", "attempt", attempts, "state", snap.State, "elapsed", elapsed)

		if snap.State.Terminal() {
			s.recordState(ctx, interactionID, snap.State)
			return snap, nil
		}

		if onUpdate != nil {
			onUpdate(snap.State, elapsed)
		}

		if maxAttempts > 0 && attempts >= maxAttempts {
			return nil, &domain.PollTimeoutError{
				Attempts: attempts,
				Interval: interval,
				State:    snap.State,
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// SaveResult writes the snapshot's last output text verbatim to reportPath,
// overwriting existing content, and returns the result record. It fails with
// ErrNoOutputs, performing no write, when the snapshot carries no outputs.
// duration may be zero when the caller did not time the run.
func (s *Service) SaveResult(reportPath string, snap *agent.Snapshot, duration time.Duration) (*domain.ResearchResult, error) {
	text, ok := snap.ReportText()
	if !ok {
		return nil, domain.ErrNoOutputs
	}

	if err := os.MkdirAll(filepath.Dir(reportPath), 0755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(reportPath, []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	slog.Debug("report saved", "path", reportPath, "chars", len(text))

	stats := snap.Statistics
	if stats == nil {
		agentName := snap.Agent
		if agentName == "" {
			agentName = s.agentName
		}
		stats = domain.ComputeStatistics(agentName, text)
	}

	return &domain.ResearchResult{
		ReportPath: reportPath,
		Statistics: stats,
		Duration:   duration,
	}, nil
}

// FetchCompletedResults fetches one fresh snapshot and persists the report
// to a newly constructed output path. It fails with NotCompletedError, and
// performs no write, unless the interaction has reached COMPLETED.
func (s *Service) FetchCompletedResults(ctx context.Context, interactionID string) (*domain.ResearchResult, error) {
	snap, err := s.gateway.GetStatus(ctx, interactionID)
	if err != nil {
		return nil, err
	}
	s.recordState(ctx, interactionID, snap.State)

	if snap.State != domain.StateCompleted {
		return nil, &domain.NotCompletedError{State: snap.State}
	}

	reportPath, err := s.OutputPath(time.Now())
	if err != nil {
		return nil, err
	}
	return s.SaveResult(reportPath, snap, 0)
}

// GetStatus performs a single fetch and maps it into a status record.
func (s *Service) GetStatus(ctx context.Context, interactionID string) (*domain.InteractionStatus, error) {
	snap, err := s.gateway.GetStatus(ctx, interactionID)
	if err != nil {
		return nil, err
	}
	s.recordState(ctx, interactionID, snap.State)

	status := &domain.InteractionStatus{
		InteractionID: interactionID,
		State:         snap.State,
		RawStatus:     snap.RawStatus,
		Statistics:    snap.Statistics,
	}
	if snap.Error != nil {
		status.ErrorCode = snap.Error.Code
		status.ErrorMessage = snap.Error.Message
	}
	return status, nil
}

// OutputPath builds a fresh timestamped report path under the output root
// and creates its directories. Each invocation of the tool gets its own
// directory, so concurrent runs cannot collide.
func (s *Service) OutputPath(now time.Time) (string, error) {
	dir := filepath.Join(s.outputDir, now.Format("2006-01-02T15-04-05"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	return filepath.Join(dir, "research.md"), nil
}

func (s *Service) recordRun(ctx context.Context, run *store.Run) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Create(ctx, run); err != nil {
		slog.Warn("failed to record run in history", "interactionID", run.InteractionID, "error", err)
	}
}

func (s *Service) recordState(ctx context.Context, interactionID string, state domain.State) {
	if s.runs == nil {
		return
	}
	if err := s.runs.SetState(ctx, interactionID, state); err != nil {
		slog.Debug("failed to record run state", "interactionID", interactionID, "error", err)
	}
}
