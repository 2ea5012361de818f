package conformance

import "os"

// Campaign is a resumable, checkpointed run of many scenarios over a
// WorkerPool. Scenarios are deterministic and ordered (canonical
// scenarios by construction, fuzz scenarios by their seed), so
// resuming just means skipping however many scenarios a prior
// checkpoint already completed and replaying its recorded failures
// into the new run's Report.
type Campaign struct {
	Pool           *WorkerPool
	CheckpointPath string
}

// NewCampaign returns a Campaign driving pool, checkpointing to path.
// An empty path disables checkpointing entirely.
func NewCampaign(pool *WorkerPool, path string) *Campaign {
	return &Campaign{Pool: pool, CheckpointPath: path}
}

// Run executes scenarios under the campaign's pool. If resume is true
// and a checkpoint exists at CheckpointPath, scenarios already completed
// in a prior run are skipped and their recorded failures are carried
// forward. A checkpoint is written once the run completes, so a second
// --resume run picks up exactly where this one left off.
func (camp *Campaign) Run(scenarios []Scenario, resume, verbose bool) error {
	alreadyDone := 0
	if resume && camp.CheckpointPath != "" {
		if ckpt, err := LoadCheckpoint(camp.CheckpointPath); err == nil {
			alreadyDone = ckpt.Completed
			for _, f := range ckpt.Failures {
				camp.Pool.Report.Add(f)
			}
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	if alreadyDone > len(scenarios) {
		alreadyDone = len(scenarios)
	}
	camp.Pool.RunScenarios(scenarios[alreadyDone:], verbose)

	if camp.CheckpointPath == "" {
		return nil
	}
	checked, _, _ := camp.Pool.Stats()
	ckpt := &Checkpoint{
		Failures:  camp.Pool.Report.Failures(),
		Completed: alreadyDone + int(checked),
	}
	return SaveCheckpoint(camp.CheckpointPath, ckpt)
}
