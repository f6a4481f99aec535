package research

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nstogner/deepresearch/pkg/agent"
	"github.com/nstogner/deepresearch/pkg/domain"
	"github.com/nstogner/deepresearch/pkg/store/sqlite"
)

// fakeGateway replays a scripted sequence of snapshots; the last one repeats
// once the script is exhausted.
type fakeGateway struct {
	snaps    []*agent.Snapshot
	getCalls int
	startID  string
	startErr error
}

func (f *fakeGateway) Start(ctx context.Context, query string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.startID, nil
}

func (f *fakeGateway) GetStatus(ctx context.Context, interactionID string) (*agent.Snapshot, error) {
	i := f.getCalls
	if i >= len(f.snaps) {
		i = len(f.snaps) - 1
	}
	f.getCalls++
	return f.snaps[i], nil
}

func newTestService(t *testing.T, gw agent.Gateway) *Service {
	t.Helper()
	return New(gw, nil, "test-agent", t.TempDir())
}

func processing() *agent.Snapshot {
	return &agent.Snapshot{ID: "int-1", RawStatus: "in_progress", State: domain.StateProcessing}
}

func completed(text string) *agent.Snapshot {
	return &agent.Snapshot{
		ID:         "int-1",
		RawStatus:  "completed",
		State:      domain.StateCompleted,
		Agent:      "test-agent",
		Outputs:    []agent.Output{{Text: text}},
		Statistics: domain.ComputeStatistics("test-agent", text),
	}
}

func TestPollUntilCompleteReturnsOnTerminal(t *testing.T) {
	gw := &fakeGateway{snaps: []*agent.Snapshot{processing(), processing(), completed("report")}}
	svc := newTestService(t, gw)

	var updates []domain.State
	snap, err := svc.PollUntilComplete(context.Background(), "int-1", 10*time.Millisecond,
		func(state domain.State, elapsed time.Duration) {
			updates = append(updates, state)
		}, 0)
	if err != nil {
		t.Fatalf("PollUntilComplete: %v", err)
	}
	if snap.State != domain.StateCompleted {
		t.Errorf("final state = %s, want %s", snap.State, domain.StateCompleted)
	}
	if gw.getCalls != 3 {
		t.Errorf("getCalls = %d, want 3", gw.getCalls)
	}
	// The callback fires on non-terminal ticks only.
	if len(updates) != 2 {
		t.Errorf("callback invoked %d times, want 2", len(updates))
	}
}

func TestPollUntilCompleteStopsOnFailed(t *testing.T) {
	failed := &agent.Snapshot{
		ID: "int-1", RawStatus: "failed", State: domain.StateFailed,
		Error: &domain.RemoteError{Code: "RESOURCE_EXHAUSTED", Message: "quota"},
	}
	gw := &fakeGateway{snaps: []*agent.Snapshot{failed}}
	svc := newTestService(t, gw)

	snap, err := svc.PollUntilComplete(context.Background(), "int-1", 10*time.Millisecond, nil, 0)
	if err != nil {
		t.Fatalf("PollUntilComplete: %v", err)
	}
	if snap.State != domain.StateFailed {
		t.Errorf("final state = %s, want %s", snap.State, domain.StateFailed)
	}
	if snap.Error == nil || snap.Error.Code != "RESOURCE_EXHAUSTED" {
		t.Errorf("error payload not carried through: %+v", snap.Error)
	}
	if gw.getCalls != 1 {
		t.Errorf("getCalls = %d, want 1", gw.getCalls)
	}
}

func TestPollUntilCompleteStopsOnCancelled(t *testing.T) {
	cancelled := &agent.Snapshot{ID: "int-1", RawStatus: "cancelled", State: domain.StateCancelled}
	gw := &fakeGateway{snaps: []*agent.Snapshot{cancelled}}
	svc := newTestService(t, gw)

	snap, err := svc.PollUntilComplete(context.Background(), "int-1", 10*time.Millisecond, nil, 0)
	if err != nil {
		t.Fatalf("PollUntilComplete: %v", err)
	}
	if snap.State != domain.StateCancelled {
		t.Errorf("final state = %s, want %s", snap.State, domain.StateCancelled)
	}
}

func TestPollUntilCompleteTimeout(t *testing.T) {
	gw := &fakeGateway{snaps: []*agent.Snapshot{processing()}}
	svc := newTestService(t, gw)

	interval := 10 * time.Millisecond
	var updates int
	_, err := svc.PollUntilComplete(context.Background(), "int-1", interval,
		func(state domain.State, elapsed time.Duration) { updates++ }, 3)

	var timeout *domain.PollTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want PollTimeoutError", err)
	}
	if timeout.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", timeout.Attempts)
	}
	if timeout.Interval != interval {
		t.Errorf("Interval = %s, want %s", timeout.Interval, interval)
	}
	if timeout.State != domain.StateProcessing {
		t.Errorf("State = %s, want %s", timeout.State, domain.StateProcessing)
	}
	if updates != 3 {
		t.Errorf("callback invoked %d times, want 3", updates)
	}
	if gw.getCalls != 3 {
		t.Errorf("getCalls = %d, want 3", gw.getCalls)
	}
}

func TestPollUntilCompleteContextCancelled(t *testing.T) {
	gw := &fakeGateway{snaps: []*agent.Snapshot{processing()}}
	svc := newTestService(t, gw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.PollUntilComplete(ctx, "int-1", time.Hour, nil, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSaveResult(t *testing.T) {
	svc := newTestService(t, &fakeGateway{})
	path := filepath.Join(t.TempDir(), "out", "research.md")

	snap := &agent.Snapshot{
		State:   domain.StateCompleted,
		Agent:   "test-agent",
		Outputs: []agent.Output{{Text: "Hello world\nfoo"}},
	}
	result, err := svc.SaveResult(path, snap, 90*time.Second)
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if string(data) != "Hello world\nfoo" {
		t.Errorf("report content = %q, want %q", data, "Hello world\nfoo")
	}

	if result.Statistics == nil {
		t.Fatal("Statistics = nil, want computed")
	}
	if result.Statistics.WordCount != 3 || result.Statistics.CharCount != 15 || result.Statistics.LineCount != 2 {
		t.Errorf("statistics = %+v, want 3 words, 15 chars, 2 lines", result.Statistics)
	}
	if result.Duration != 90*time.Second {
		t.Errorf("Duration = %s, want 90s", result.Duration)
	}
}

func TestSaveResultUsesLastOutput(t *testing.T) {
	svc := newTestService(t, &fakeGateway{})
	path := filepath.Join(t.TempDir(), "research.md")

	snap := &agent.Snapshot{
		Outputs: []agent.Output{{Text: "draft"}, {Text: "final report"}},
	}
	if _, err := svc.SaveResult(path, snap, 0); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "final report" {
		t.Errorf("report content = %q, want %q", data, "final report")
	}
}

func TestSaveResultNoOutputs(t *testing.T) {
	svc := newTestService(t, &fakeGateway{})
	path := filepath.Join(t.TempDir(), "research.md")

	_, err := svc.SaveResult(path, &agent.Snapshot{State: domain.StateCompleted}, 0)
	if !errors.Is(err, domain.ErrNoOutputs) {
		t.Fatalf("err = %v, want ErrNoOutputs", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("report file written despite missing outputs")
	}
}

func TestFetchCompletedResultsNotCompleted(t *testing.T) {
	gw := &fakeGateway{snaps: []*agent.Snapshot{processing()}}
	outputDir := t.TempDir()
	svc := New(gw, nil, "test-agent", outputDir)

	_, err := svc.FetchCompletedResults(context.Background(), "int-1")
	var notCompleted *domain.NotCompletedError
	if !errors.As(err, &notCompleted) {
		t.Fatalf("err = %v, want NotCompletedError", err)
	}
	if notCompleted.State != domain.StateProcessing {
		t.Errorf("State = %s, want %s", notCompleted.State, domain.StateProcessing)
	}

	// No report may exist anywhere under the output root.
	var found []string
	filepath.Walk(outputDir, func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			found = append(found, p)
		}
		return nil
	})
	if len(found) != 0 {
		t.Errorf("unexpected files written: %v", found)
	}
}

func TestFetchCompletedResults(t *testing.T) {
	gw := &fakeGateway{snaps: []*agent.Snapshot{completed("# Findings\n\ndone")}}
	outputDir := t.TempDir()
	svc := New(gw, nil, "test-agent", outputDir)

	result, err := svc.FetchCompletedResults(context.Background(), "int-1")
	if err != nil {
		t.Fatalf("FetchCompletedResults: %v", err)
	}
	data, err := os.ReadFile(result.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if string(data) != "# Findings\n\ndone" {
		t.Errorf("report content = %q", data)
	}
	if filepath.Base(result.ReportPath) != "research.md" {
		t.Errorf("report file = %q, want research.md", filepath.Base(result.ReportPath))
	}
}

func TestStartResearchEmptyQuery(t *testing.T) {
	svc := newTestService(t, &fakeGateway{startID: "int-1"})
	_, err := svc.StartResearch(context.Background(), domain.ResearchRequest{Query: "   "}, "report.md")
	if err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestStartResearchRecordsRun(t *testing.T) {
	runs, err := sqlite.New(t.TempDir() + "/history.db")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { runs.Close() })

	gw := &fakeGateway{startID: "int-42", snaps: []*agent.Snapshot{completed("text")}}
	svc := New(gw, runs, "test-agent", t.TempDir())

	ctx := context.Background()
	id, err := svc.StartResearch(ctx, domain.ResearchRequest{Query: "why is the sky blue"}, "/tmp/report.md")
	if err != nil {
		t.Fatalf("StartResearch: %v", err)
	}
	if id != "int-42" {
		t.Errorf("interaction id = %q, want int-42", id)
	}

	run, err := runs.GetByInteraction(ctx, "int-42")
	if err != nil {
		t.Fatalf("GetByInteraction: %v", err)
	}
	if run.Query != "why is the sky blue" {
		t.Errorf("Query = %q", run.Query)
	}
	if run.State != domain.StateProcessing {
		t.Errorf("State = %s, want %s", run.State, domain.StateProcessing)
	}

	// A status fetch updates the recorded state.
	if _, err := svc.GetStatus(ctx, "int-42"); err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	run, _ = runs.GetByInteraction(ctx, "int-42")
	if run.State != domain.StateCompleted {
		t.Errorf("State after fetch = %s, want %s", run.State, domain.StateCompleted)
	}
}

func TestGetStatusMapsSnapshot(t *testing.T) {
	failed := &agent.Snapshot{
		ID: "int-1", RawStatus: "failed", State: domain.StateFailed,
		Error: &domain.RemoteError{Code: "INTERNAL", Message: "boom"},
	}
	gw := &fakeGateway{snaps: []*agent.Snapshot{failed}}
	svc := newTestService(t, gw)

	status, err := svc.GetStatus(context.Background(), "int-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.Failed() {
		t.Errorf("State = %s, want FAILED", status.State)
	}
	if status.ErrorCode != "INTERNAL" || status.ErrorMessage != "boom" {
		t.Errorf("error fields = %q/%q", status.ErrorCode, status.ErrorMessage)
	}

	// A second fetch with no remote change is field-for-field identical.
	again, err := svc.GetStatus(context.Background(), "int-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if *again != *status {
		t.Errorf("statuses differ: %+v vs %+v", status, again)
	}
}
