package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/company-scout/internal/ai"
	"github.com/spigell/company-scout/internal/company"
	"github.com/spigell/company-scout/internal/report"
)

type stubAnalyzer struct {
	calls  int
	fail   func(batchNum int) bool
	scores func(batchNum int) []ai.ScoredCompany
}

func (s *stubAnalyzer) Analyze(_ context.Context, batch []*company.Company, _ string, batchNum int) (*ai.Analysis, error) {
	s.calls++
	if s.fail != nil && s.fail(batchNum) {
		return nil, fmt.Errorf("batch %d failed", batchNum)
	}
	return &ai.Analysis{Scores: s.scores(batchNum)}, nil
}

// recordingSaver keeps a snapshot of every checkpoint for later inspection.
type recordingSaver struct {
	snapshots [][]ai.ScoredCompany
}

func (r *recordingSaver) Save(results []ai.ScoredCompany) error {
	snapshot := make([]ai.ScoredCompany, len(results))
	copy(snapshot, results)
	r.snapshots = append(r.snapshots, snapshot)
	return nil
}

func (r *recordingSaver) Path() string { return "recorded" }

func fixedScores(batchNum int) []ai.ScoredCompany {
	return []ai.ScoredCompany{
		{CompanyName: fmt.Sprintf("batch-%d-a", batchNum), Score: 90, Explanation: "great"},
		{CompanyName: fmt.Sprintf("batch-%d-b", batchNum), Score: 10, Explanation: "poor"},
	}
}

func TestRunnerEndToEnd(t *testing.T) {
	// 65 companies with batch size 30 must yield batches of 30, 30 and 5.
	companies := makeCompanies(65)

	analyzer := &stubAnalyzer{scores: fixedScores}
	path := filepath.Join(t.TempDir(), "scores.json")
	sink, err := report.NewWriter(report.FormatJSON, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := New(analyzer, sink, 30, 0, 0.01, zap.NewNop())

	results, err := r.Run(context.Background(), companies, "Go Developer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if analyzer.calls != 3 {
		t.Fatalf("expected 3 batches, got %d", analyzer.calls)
	}

	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}

	for i := 0; i < 3; i++ {
		if results[i].Score != 90 {
			t.Fatalf("expected the first half sorted to score 90, got %v at %d", results[i].Score, i)
		}
	}
	for i := 3; i < 6; i++ {
		if results[i].Score != 10 {
			t.Fatalf("expected the second half sorted to score 10, got %v at %d", results[i].Score, i)
		}
	}
}

func TestRunnerContinuesPastFailedBatches(t *testing.T) {
	companies := makeCompanies(10)

	analyzer := &stubAnalyzer{
		fail: func(int) bool { return true },
	}
	path := filepath.Join(t.TempDir(), "scores.json")
	sink, err := report.NewWriter(report.FormatJSON, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := New(analyzer, sink, 3, 0, 0, zap.NewNop())

	results, err := r.Run(context.Background(), companies, "Go Developer")
	if err != nil {
		t.Fatalf("run must complete despite batch failures: %v", err)
	}

	if analyzer.calls != 4 {
		t.Fatalf("expected all 4 batches attempted, got %d", analyzer.calls)
	}

	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}

	// The final save still produces an (empty) output file.
	loaded := loadResults(t, path)
	if len(loaded) != 0 {
		t.Fatalf("expected empty result file, got %d records", len(loaded))
	}
}

func TestRunnerCheckpointMonotonicity(t *testing.T) {
	companies := makeCompanies(9)

	analyzer := &stubAnalyzer{
		fail:   func(batchNum int) bool { return batchNum == 2 },
		scores: fixedScores,
	}
	saver := &recordingSaver{}

	r := New(analyzer, saver, 3, 0, 0, zap.NewNop())

	results, err := r.Run(context.Background(), companies, "Go Developer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Two successful batches checkpointed plus one final save.
	if len(saver.snapshots) != 3 {
		t.Fatalf("expected 3 saves, got %d", len(saver.snapshots))
	}

	first := saver.snapshots[0]
	if len(first) != 2 || first[0].CompanyName != "batch-1-a" {
		t.Fatalf("unexpected first checkpoint: %+v", first)
	}

	// Second checkpoint holds the unsorted union of batches 1 and 3.
	second := saver.snapshots[1]
	if len(second) != 4 {
		t.Fatalf("expected 4 records in second checkpoint, got %d", len(second))
	}
	if second[2].CompanyName != "batch-3-a" {
		t.Fatalf("expected batch 3 appended in completion order, got %+v", second[2])
	}

	final := saver.snapshots[2]
	if len(final) != 4 {
		t.Fatalf("expected 4 records in the final save, got %d", len(final))
	}
	if final[0].Score != 90 || final[1].Score != 90 || final[2].Score != 10 {
		t.Fatalf("expected final save sorted descending, got %+v", final)
	}
	// Stable sort keeps completion order within equal scores.
	if final[0].CompanyName != "batch-1-a" || final[1].CompanyName != "batch-3-a" {
		t.Fatalf("expected ties in completion order, got %+v", final)
	}

	if len(results) != 4 {
		t.Fatalf("expected 4 results returned, got %d", len(results))
	}
}

func TestRunnerCheckpointErrorAborts(t *testing.T) {
	companies := makeCompanies(4)

	analyzer := &stubAnalyzer{scores: fixedScores}
	saver := &failingSaver{}

	r := New(analyzer, saver, 2, 0, 0, zap.NewNop())

	if _, err := r.Run(context.Background(), companies, "Go Developer"); err == nil {
		t.Fatal("expected checkpoint error to abort the run")
	}
}

func TestRunnerStopsOnCancelledContext(t *testing.T) {
	companies := makeCompanies(4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	analyzer := &stubAnalyzer{scores: fixedScores}
	saver := &recordingSaver{}

	// Long pacing so the cancelled context is the only way out.
	r := New(analyzer, saver, 2, time.Minute, 0, zap.NewNop())

	if _, err := r.Run(ctx, companies, "Go Developer"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The first batch was checkpointed before the pacing stop.
	if len(saver.snapshots) != 1 {
		t.Fatalf("expected a single checkpoint, got %d", len(saver.snapshots))
	}
}

type failingSaver struct{}

func (f *failingSaver) Save([]ai.ScoredCompany) error { return errors.New("disk full") }
func (f *failingSaver) Path() string                  { return "failing" }

func makeCompanies(n int) *company.Companies {
	items := make([]*company.Company, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, &company.Company{
			Name:  fmt.Sprintf("company-%d", i),
			About: fmt.Sprintf("about company %d", i),
		})
	}
	return &company.Companies{Items: items}
}

func loadResults(t *testing.T, path string) []ai.ScoredCompany {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %q: %v", path, err)
	}

	var results []ai.ScoredCompany
	if err := json.Unmarshal(data, &results); err != nil {
		t.Fatalf("parsing %q: %v", path, err)
	}

	return results
}
