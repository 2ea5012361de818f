package conformance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oisee/codegen/pkg/pipeline"
)

func TestCanonicalScenariosAllPass(t *testing.T) {
	for _, s := range CanonicalScenarios(pipeline.Config{}) {
		if err := s.Run(); err != nil {
			t.Errorf("%s: %v", s.Name, err)
		}
	}
}

func TestFuzzScenarioPassesForSeveralSeeds(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		s := NewFuzzScenario(seed, 6, pipeline.Config{})
		if err := s.Run(); err != nil {
			t.Errorf("%s: %v", s.Name, err)
		}
	}
}

func TestReportFailuresSortedByName(t *testing.T) {
	r := NewReport()
	r.Add(Failure{Name: "zzz", Err: "boom"})
	r.Add(Failure{Name: "aaa", Err: "boom"})
	got := r.Failures()
	if len(got) != 2 || got[0].Name != "aaa" || got[1].Name != "zzz" {
		t.Fatalf("Failures() = %+v, want sorted by name", got)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.gob")
	want := &Checkpoint{
		Failures:  []Failure{{Name: "S1-return-constant", Err: "got 1, want 42"}},
		Completed: 3,
	}
	if err := SaveCheckpoint(path, want); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	got, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if got.Completed != want.Completed || len(got.Failures) != 1 || got.Failures[0] != want.Failures[0] {
		t.Errorf("LoadCheckpoint() = %+v, want %+v", got, want)
	}
}

func TestCampaignResumeSkipsCompletedScenarios(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.gob")
	scenarios := CanonicalScenarios(pipeline.Config{})

	pool1 := NewWorkerPool(1)
	camp1 := NewCampaign(pool1, path)
	if err := camp1.Run(scenarios, false, false); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	checked1, _, _ := pool1.Stats()
	if int(checked1) != len(scenarios) {
		t.Fatalf("first Run checked %d, want %d", checked1, len(scenarios))
	}

	pool2 := NewWorkerPool(1)
	camp2 := NewCampaign(pool2, path)
	if err := camp2.Run(scenarios, true, false); err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	checked2, _, _ := pool2.Stats()
	if checked2 != 0 {
		t.Errorf("resumed Run checked %d new scenarios, want 0 (all already completed)", checked2)
	}
}

func TestCampaignResumeWithoutCheckpointRunsEverything(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist.gob")
	if _, err := os.Stat(missing); err == nil {
		t.Fatal("expected checkpoint file to not exist")
	}
	scenarios := CanonicalScenarios(pipeline.Config{})

	pool := NewWorkerPool(1)
	camp := NewCampaign(pool, missing)
	if err := camp.Run(scenarios, true, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	checked, _, _ := pool.Stats()
	if int(checked) != len(scenarios) {
		t.Errorf("checked %d, want %d (no prior checkpoint to resume from)", checked, len(scenarios))
	}
}
