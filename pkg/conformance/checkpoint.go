package conformance

import (
	"encoding/gob"
	"os"
)

// Checkpoint holds enough state to resume a campaign: every failure seen
// so far, plus how many scenarios have been checked. Unlike the
// teacher's result.Checkpoint, no custom gob.Register calls are needed
// here — Failure is plain strings, since a Scenario's build closure
// can't survive a round trip through gob and isn't part of what a
// resumed run needs (fuzz scenarios are rebuilt deterministically from
// their seed, and canonical scenarios are rebuilt from their
// constructor).
type Checkpoint struct {
	Failures  []Failure
	Completed int
}

// SaveCheckpoint writes campaign state to path.
func SaveCheckpoint(path string, ckpt *Checkpoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(ckpt)
}

// LoadCheckpoint reads campaign state from path.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var ckpt Checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, err
	}
	return &ckpt, nil
}
